package cli

import (
	"context"
	"fmt"

	"github.com/laserman120/discord-bridge/internal/cache"
	"github.com/laserman120/discord-bridge/internal/config"
	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/handlers"
	"github.com/laserman120/discord-bridge/internal/id"
	"github.com/laserman120/discord-bridge/internal/intake"
	"github.com/laserman120/discord-bridge/internal/lease"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/metrics"
	"github.com/laserman120/discord-bridge/internal/payload"
	"github.com/laserman120/discord-bridge/internal/prefetch"
	"github.com/laserman120/discord-bridge/internal/pruner"
	"github.com/laserman120/discord-bridge/internal/queue"
	"github.com/laserman120/discord-bridge/internal/resolver"
	"github.com/laserman120/discord-bridge/internal/retry"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/store"
	"github.com/laserman120/discord-bridge/internal/sweep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg     *config.Config
	rdb     *redis.Client
	links   store.Store
	metrics *metrics.Metrics
	queue   *queue.Queue
	worker  *queue.Worker
	pruner  *pruner.Pruner
	sweeper *sweep.Sweeper
	router  *intake.Router
	logger  *log.Logger
}

func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *log.Logger) (*app, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	links, err := store.Open(ctx, cfg.LinkageDSN, rdb, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}
	node, err := id.NewNode(cfg.NodeID)
	if err != nil {
		links.Close()
		rdb.Close()
		return nil, err
	}

	m := metrics.New(reg)
	src := source.NewReddit(source.Options{
		BaseURL:   cfg.RedditBaseURL,
		Token:     cfg.RedditToken,
		UserAgent: cfg.RedditUserAgent,
		Subreddit: cfg.Subreddit,
		Retry:     retry.Default,
	}, logger)
	gw := gateway.NewWebhook(gateway.Options{Requests: m.GatewayRequests}, logger)
	c := cache.New(rdb, logger)
	sp := settings.NewFileProvider(cfg.SettingsFile, logger)

	dispatcher := handlers.New(handlers.Deps{
		Settings: sp,
		Source:   src,
		Resolver: resolver.New(src, c, resolver.Options{ContentTTL: cfg.ContentCacheTTL, AuthorTTL: cfg.AuthorStatsTTL}, logger),
		Links:    links,
		Gateway:  gw,
		Cache:    c,
		Builder:  payload.NewBuilder(),
	}, logger)

	q := queue.New(rdb, node, m, logger)
	worker := queue.NewWorker(q, lease.NewLocker(rdb, queue.LeaseKey, cfg.LeaseTTL), prefetch.New(src, logger), dispatcher,
		queue.WorkerOptions{BatchSize: cfg.QueueBatchSize, TaskDelay: cfg.QueueTaskDelay}, m, logger)

	return &app{
		cfg:     cfg,
		rdb:     rdb,
		links:   links,
		metrics: m,
		queue:   q,
		worker:  worker,
		pruner:  pruner.New(links, gw, cfg.PruneMaxAge, cfg.PruneLimit, m, logger),
		sweeper: sweep.New(sp, src, links, gw, q, logger),
		router:  intake.NewRouter(q, logger),
		logger:  logger,
	}, nil
}

func (a *app) Close() {
	if err := a.links.Close(); err != nil {
		a.logger.Errorw("Failed to close linkage store", "error", err)
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Errorw("Failed to close redis client", "error", err)
	}
}
