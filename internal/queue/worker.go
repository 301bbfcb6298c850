package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laserman120/discord-bridge/internal/id"
	"github.com/laserman120/discord-bridge/internal/lease"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/metrics"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/prefetch"
	"github.com/laserman120/discord-bridge/internal/source"
)

// Dispatcher runs one task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.Task, item *model.Item, snap source.Snapshot) error
}

type WorkerOptions struct {
	BatchSize int
	// TaskDelay is the pause between two dispatched tasks.
	TaskDelay time.Duration
}

// Worker drains the queue in batches while holding the queue lease.
type Worker struct {
	queue    *Queue
	locker   *lease.Locker
	prefetch *prefetch.Prefetcher
	dispatch Dispatcher
	opts     WorkerOptions
	metrics  *metrics.Metrics
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewWorker creates a worker. m may be nil.
func NewWorker(q *Queue, locker *lease.Locker, p *prefetch.Prefetcher, d Dispatcher, opts WorkerOptions, m *metrics.Metrics, logger *log.Logger) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Worker{
		queue:    q,
		locker:   locker,
		prefetch: p,
		dispatch: d,
		opts:     opts,
		metrics:  m,
		logger:   logger.Named("worker"),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RunOnce processes one batch. A lease held elsewhere is not an error: the
// other holder is already draining the queue.
func (w *Worker) RunOnce(ctx context.Context) error {
	l, err := w.locker.Acquire(ctx)
	if errors.Is(err, lease.ErrHeld) {
		w.logger.Infow("Queue lease held elsewhere, skipping run")
		w.run("skipped")
		return nil
	}
	if err != nil {
		w.run("error")
		return err
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Errorw("Failed to release queue lease", "error", err)
		}
	}()

	entries, err := w.queue.WithdrawBatch(ctx, w.opts.BatchSize)
	if err != nil {
		w.run("error")
		return err
	}
	if len(entries) == 0 {
		w.run("empty")
		return nil
	}
	if born, err := id.KeyTime(entries[0].Key); err == nil {
		w.logger.Debugw("Batch withdrawn", "tasks", len(entries), "oldest_age", time.Since(born))
	}

	tasks := make([]model.Task, 0, len(entries))
	for _, e := range entries {
		if e.Err == nil {
			tasks = append(tasks, e.Task)
		}
	}
	batch := w.prefetch.Load(ctx, tasks)

	processed := 0
	for i, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if l.Stale() {
			if err := l.Renew(ctx); err != nil {
				w.logger.Warnw("Lost queue lease, stopping batch", "processed", processed, "error", err)
				w.run("lease_lost")
				return nil
			}
		}
		if e.Err != nil {
			w.logger.Warnw("Dropping malformed task", "key", e.Key, "error", e.Err)
			w.processed("", "malformed")
		} else {
			outcome := w.handle(ctx, e.Task, batch)
			w.processed(string(e.Task.Handler), outcome)
			processed++
		}
		// a dispatched task is removed even when shutdown cancelled ctx mid-dispatch
		if err := w.queue.Remove(context.WithoutCancel(ctx), e.Key); err != nil {
			w.logger.Errorw("Failed to remove task", "key", e.Key, "error", err)
		}
		if i < len(entries)-1 && e.Err == nil {
			w.sleep(ctx, w.opts.TaskDelay)
		}
	}
	w.logger.Infow("Batch processed", "tasks", processed, "withdrawn", len(entries))
	w.run("ok")
	return nil
}

func (w *Worker) handle(ctx context.Context, task model.Task, batch *prefetch.Batch) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("Handler panicked", "handler", task.Handler, "panic", fmt.Sprint(r))
			outcome = "panic"
		}
	}()
	if err := w.dispatch.Dispatch(ctx, task, batch.Item(task.Payload.ContentID()), batch.Snapshot); err != nil {
		w.logger.Errorw("Handler failed", "handler", task.Handler, "error", err)
		return "error"
	}
	return "ok"
}

// Run calls RunOnce every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Errorw("Worker run failed", "error", err)
			}
		}
	}
}

func (w *Worker) run(outcome string) {
	if w.metrics != nil {
		w.metrics.WorkerRuns.WithLabelValues(outcome).Inc()
	}
}

func (w *Worker) processed(handler, outcome string) {
	if w.metrics != nil {
		w.metrics.TasksProcessed.WithLabelValues(handler, outcome).Inc()
	}
}
