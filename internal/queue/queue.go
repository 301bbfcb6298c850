// Package queue is the durable task queue. Tasks live in a Redis sorted set
// of keys scored by enqueue time plus a hash of encoded bodies. A task is
// read once and removed after dispatch whatever the outcome, so delivery is
// at most once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/laserman120/discord-bridge/internal/id"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/metrics"
	"github.com/laserman120/discord-bridge/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	idsKey  = "msg_queue:ids"
	dataKey = "msg_queue:data"
	// LeaseKey guards the single worker.
	LeaseKey = "msg_queue:lock"
)

// ErrMalformed marks a queued entry that could not be decoded.
var ErrMalformed = errors.New("malformed task")

// Entry is one withdrawn task. Err is set when the stored body could not be
// decoded; such entries are removed without dispatch.
type Entry struct {
	Key  string
	Task model.Task
	Err  error
}

type Queue struct {
	client  *redis.Client
	node    *id.Node
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// New creates a queue. m may be nil.
func New(client *redis.Client, node *id.Node, m *metrics.Metrics, logger *log.Logger) *Queue {
	return &Queue{
		client:  client,
		node:    node,
		metrics: m,
		logger:  logger.Named("queue"),
		now:     time.Now,
	}
}

// Enqueue stores task. It never fails the producer: storage errors are
// logged and the task is dropped.
func (q *Queue) Enqueue(ctx context.Context, task model.Task) {
	data, err := json.Marshal(task)
	if err != nil {
		q.logger.Errorw("Failed to encode task", "handler", task.Handler, "error", err)
		return
	}
	key := q.node.Key()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, dataKey, key, data)
	pipe.ZAdd(ctx, idsKey, redis.Z{Score: float64(q.now().UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Errorw("Failed to enqueue task", "handler", task.Handler, "error", err)
		return
	}
	if q.metrics != nil {
		q.metrics.TasksEnqueued.WithLabelValues(string(task.Handler)).Inc()
	}
}

// WithdrawBatch returns up to max of the oldest tasks. They stay queued
// until Remove is called.
func (q *Queue) WithdrawBatch(ctx context.Context, max int) ([]Entry, error) {
	if max <= 0 {
		return nil, nil
	}
	keys, err := q.client.ZRange(ctx, idsKey, 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("withdraw batch: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := q.client.HMGet(ctx, dataKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("withdraw batch: %w", err)
	}
	entries := make([]Entry, len(keys))
	for i, key := range keys {
		entries[i].Key = key
		raw, ok := vals[i].(string)
		if !ok {
			entries[i].Err = fmt.Errorf("%w: %s has no body", ErrMalformed, key)
			continue
		}
		if err := json.Unmarshal([]byte(raw), &entries[i].Task); err != nil {
			entries[i].Err = fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
			continue
		}
		if !entries[i].Task.Handler.Valid() {
			entries[i].Err = fmt.Errorf("%w: %s: unknown handler %q", ErrMalformed, key, entries[i].Task.Handler)
		}
	}
	return entries, nil
}

// Remove deletes a task's key and body.
func (q *Queue) Remove(ctx context.Context, key string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, idsKey, key)
	pipe.HDel(ctx, dataKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove task %s: %w", key, err)
	}
	return nil
}

// Size returns the number of queued tasks.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, idsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}
