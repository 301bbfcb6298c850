package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	actionWindow    = time.Hour
	warningCooldown = 15 * time.Minute
)

func actionKey(moderator string) string   { return keyPrefix + "mod_actions:" + moderator }
func cooldownKey(moderator string) string { return keyPrefix + "mod_warning_cooldown:" + moderator }

// TrackAction records one moderator action and trims entries older than an hour.
func (c *Cache) TrackAction(ctx context.Context, moderator, action, target string, at time.Time) error {
	if target == "" {
		target = "global"
	}
	now := at.Unix()
	// nanoseconds keep repeated actions within one second distinct
	member := fmt.Sprintf("%d:%s:%s", at.UnixNano(), action, target)
	key := actionKey(moderator)

	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now-int64(actionWindow.Seconds()), 10))
	pipe.Expire(ctx, key, actionWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track mod action: %w", err)
	}
	return nil
}

// CountActions counts actions of the monitored kinds within the last window.
func (c *Cache) CountActions(ctx context.Context, moderator string, window time.Duration, monitored []string, at time.Time) (int, error) {
	start := at.Add(-window).Unix()
	members, err := c.client.ZRangeByScore(ctx, actionKey(moderator), &redis.ZRangeBy{
		Min: strconv.FormatInt(start, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("count mod actions: %w", err)
	}
	want := make(map[string]struct{}, len(monitored))
	for _, a := range monitored {
		want[a] = struct{}{}
	}
	count := 0
	for _, m := range members {
		parts := strings.SplitN(m, ":", 3)
		if len(parts) < 2 {
			continue
		}
		if _, ok := want[parts[1]]; ok {
			count++
		}
	}
	return count, nil
}

func (c *Cache) OnCooldown(ctx context.Context, moderator string) (bool, error) {
	n, err := c.client.Exists(ctx, cooldownKey(moderator)).Result()
	if err != nil {
		return false, fmt.Errorf("check warning cooldown: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) SetCooldown(ctx context.Context, moderator string) error {
	if err := c.client.Set(ctx, cooldownKey(moderator), "1", warningCooldown).Err(); err != nil {
		return fmt.Errorf("set warning cooldown: %w", err)
	}
	return nil
}
