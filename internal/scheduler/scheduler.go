// Package scheduler runs the periodic jobs, one ticker goroutine each.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *log.Logger
}

func New(logger *log.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger.Named("scheduler")}
}

// Run starts every job with a positive interval and blocks until ctx is done
// and all jobs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Infow("Job disabled", "job", job.Name)
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	s.logger.Info("Scheduler shutdown complete")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	s.logger.Infow("Job scheduled", "job", job.Name, "interval", job.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Job panicked", "job", job.Name, "panic", r)
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Errorw("Job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debugw("Job finished", "job", job.Name, "duration", time.Since(start))
}
