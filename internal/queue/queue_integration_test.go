//go:build integration

package queue

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/cache"
	"github.com/laserman120/discord-bridge/internal/gateway/gatewaytest"
	"github.com/laserman120/discord-bridge/internal/handlers"
	"github.com/laserman120/discord-bridge/internal/id"
	"github.com/laserman120/discord-bridge/internal/intake"
	"github.com/laserman120/discord-bridge/internal/lease"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/prefetch"
	"github.com/laserman120/discord-bridge/internal/resolver"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/source/sourcetest"
	"github.com/laserman120/discord-bridge/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		container, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7"))
		require.NoError(t, err, "start redis container")
		t.Cleanup(func() { container.Terminate(ctx) })
		addr, err = container.Endpoint(ctx, "")
		require.NoError(t, err)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func TestEndToEndPostSubmit(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	logger := log.NewNop()

	src := sourcetest.NewMemory()
	src.Put(&model.Item{ID: "t3_e2e", Kind: model.KindPost, Title: "hello", Author: "alice", CreatedAt: time.Now()})
	gw := gatewaytest.NewRecorder()
	links := store.NewRedisStore(client, logger)
	c := cache.New(client, logger)
	s := settings.Default()
	s.Webhooks.NewPosts = "https://discord.com/api/webhooks/1/new"

	d := handlers.New(handlers.Deps{
		Settings: settings.Static{S: s},
		Source:   src,
		Resolver: resolver.New(src, c, resolver.Options{}, logger),
		Links:    links,
		Gateway:  gw,
		Cache:    c,
	}, logger)

	node, err := id.NewNode(7)
	require.NoError(t, err)
	q := New(client, node, nil, logger)
	router := intake.NewRouter(q, logger)
	_, err = router.Route(ctx, intake.Event{Payload: model.Payload{Kind: model.EventPostSubmit}, Post: &model.Ref{ID: "t3_e2e"}})
	require.NoError(t, err)

	w := NewWorker(q, lease.NewLocker(client, LeaseKey, time.Minute), prefetch.New(src, logger), d, WorkerOptions{BatchSize: 50}, nil, logger)
	require.NoError(t, w.RunOnce(ctx))

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, gw.Count("send"))
	found, err := links.FindLinks(ctx, "t3_e2e")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, model.ChannelNewPosts, found[0].Channel)
}

func TestConcurrentWorkersDispatchOnce(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	logger := log.NewNop()
	node, err := id.NewNode(8)
	require.NoError(t, err)
	q := New(client, node, nil, logger)
	for i := 0; i < 40; i++ {
		q.Enqueue(ctx, model.Task{Handler: model.HandlerModMail, Payload: model.Payload{Kind: model.EventModMail, ConversationID: node.Key()}})
	}

	rec := &recordingDispatcher{seen: map[string]int{}}
	src := sourcetest.NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		w := NewWorker(q, lease.NewLocker(client, LeaseKey, time.Minute), prefetch.New(src, logger), rec, WorkerOptions{BatchSize: 10}, nil, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(20 * time.Second)
			for time.Now().Before(deadline) {
				assert.NoError(t, w.RunOnce(ctx))
				if n, err := q.Size(ctx); err == nil && n == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.seen, 40)
	for conv, count := range rec.seen {
		assert.Equal(t, 1, count, conv)
	}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, task model.Task, item *model.Item, snap source.Snapshot) error {
	r.mu.Lock()
	r.seen[task.Payload.ConversationID]++
	r.mu.Unlock()
	return nil
}
