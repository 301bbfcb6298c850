// Package store persists the links between source content and the
// destination messages that mirror it.
//
// Every link is indexed twice: by source id, to find everything ever sent
// about a piece of content, and by creation time, to find what the pruner
// should expire. Creating a link is not idempotent; callers check FindLinks
// before sending.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound       = errors.New("link not found")
	ErrUnsupportedDSN = errors.New("unsupported linkage dsn")
)

type Store interface {
	RecordLink(ctx context.Context, entry LinkEntry) error
	GetLink(ctx context.Context, messageID string) (LinkEntry, error)
	FindLinks(ctx context.Context, sourceID string) ([]LinkEntry, error)
	UpdateState(ctx context.Context, messageID string, state model.State) error
	DeleteLink(ctx context.Context, entry LinkEntry) error
	FindExpired(ctx context.Context, maxAge time.Duration, limit int) ([]string, error)
	RecentLinks(ctx context.Context, limit int) ([]LinkEntry, error)

	TrackActive(ctx context.Context, conversationID string) error
	UntrackActive(ctx context.Context, conversationID string) error
	ActiveIDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend from the dsn scheme. redis:// reuses rdb;
// postgres:// opens a connection pool and applies the schema.
func Open(ctx context.Context, dsn string, rdb *redis.Client, logger *log.Logger) (Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse linkage dsn: %w", err)
	}
	switch u.Scheme {
	case "redis", "":
		if rdb == nil {
			return nil, fmt.Errorf("redis linkage store needs a client: %w", ErrUnsupportedDSN)
		}
		return NewRedisStore(rdb, logger), nil
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, u.Scheme)
	}
}

func stamp(entry *LinkEntry, now time.Time) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if entry.CreatedAtEpoch == 0 {
		entry.CreatedAtEpoch = entry.CreatedAt.Unix()
	}
}
