package config

import (
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SUBREDDIT", "example")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(log.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DefaultBatchSize, cfg.QueueBatchSize)
	assert.Equal(t, 150*time.Millisecond, cfg.QueueTaskDelay)
	assert.Equal(t, 120*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 13*24*time.Hour, cfg.PruneMaxAge)
	assert.Equal(t, 1000, cfg.PruneLimit)
	assert.Equal(t, 20*time.Second, cfg.ContentCacheTTL)
	assert.Equal(t, "redis://", cfg.LinkageDSN)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadClampsBatchSize(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SUBREDDIT", "example")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("QUEUE_BATCH_SIZE", "500")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(log.NewNop())
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, cfg.QueueBatchSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SUBREDDIT", "example")

	_, err := Load(log.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SUBREDDIT", "example")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LEASE_TTL", "soon")

	_, err := Load(log.NewNop())
	require.Error(t, err)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, clamp(0, 1, 150))
	assert.Equal(t, 150, clamp(151, 1, 150))
	assert.Equal(t, 42, clamp(42, 1, 150))
	assert.Equal(t, 2*time.Second, clamp(5*time.Second, time.Second, 2*time.Second))
}
