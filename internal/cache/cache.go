// Package cache is a cache-aside TTL store on Redis. A miss, a decode error
// and a Redis error are all reported as absence; callers recompute.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cache:"

type Cache struct {
	client redis.Cmdable
	logger *log.Logger
}

func New(client redis.Cmdable, logger *log.Logger) *Cache {
	return &Cache{client: client, logger: logger.Named("cache")}
}

// Get decodes the value stored under key into dst and reports whether it
// was present.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnw("Cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warnw("Cache entry undecodable", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores v under key. A zero ttl keeps the entry until it is deleted.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// GetOrLoad returns the cached value for key, calling load and caching its
// result on a miss. Failing to write the cache is logged, not returned.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warnw("Cache write failed", "key", key, "error", err)
	}
	return v, nil
}
