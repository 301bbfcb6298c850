package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/joho/godotenv"
	"golang.org/x/exp/constraints"
)

const (
	MaxBatchSize     = 150
	DefaultBatchSize = 100
)

type Config struct {
	RedisAddr             string
	RedisPassword         string
	LinkageDSN            string
	SettingsFile          string
	Subreddit             string
	RedditBaseURL         string
	RedditToken           string
	RedditUserAgent       string
	QueueBatchSize        int
	QueueTaskDelay        time.Duration
	LeaseTTL              time.Duration
	WorkerInterval        time.Duration
	PruneInterval         time.Duration
	PruneMaxAge           time.Duration
	PruneLimit            int
	ModMailSyncInterval   time.Duration
	ModQueueCheckInterval time.Duration
	SpamScanInterval      time.Duration
	ContentCacheTTL       time.Duration
	AuthorStatsTTL        time.Duration
	HTTPAddr              string
	MetricsAddr           string
	KafkaBrokers          []string
	KafkaTopic            string
	KafkaGroup            string
	NodeID                int64
	JWTSecret             string
	TLSCertFile           string
	TLSKeyFile            string
}

// Load reads the configuration from the environment, falling back to a .env
// file when one is present.
func Load(logger *log.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional when variables are set elsewhere
		logger.Warnw("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		LinkageDSN:            getenv("LINKAGE_DSN", "redis://"),
		SettingsFile:          getenv("SETTINGS_FILE", "settings.yaml"),
		Subreddit:             os.Getenv("SUBREDDIT"),
		RedditBaseURL:         getenv("REDDIT_BASE_URL", "https://oauth.reddit.com"),
		RedditToken:           os.Getenv("REDDIT_TOKEN"),
		RedditUserAgent:       getenv("REDDIT_USER_AGENT", "discord-bridge/1.0"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		MetricsAddr:           getenv("METRICS_ADDR", ":2112"),
		KafkaTopic:            getenv("KAFKA_TOPIC", "reddit-events"),
		KafkaGroup:            getenv("KAFKA_GROUP", "discord-bridge"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		TLSCertFile:           os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:            os.Getenv("TLS_KEY_FILE"),
		QueueBatchSize:        DefaultBatchSize,
		QueueTaskDelay:        150 * time.Millisecond,
		LeaseTTL:              120 * time.Second,
		WorkerInterval:        30 * time.Second,
		PruneInterval:         time.Hour,
		PruneMaxAge:           13 * 24 * time.Hour,
		PruneLimit:            1000,
		ModMailSyncInterval:   5 * time.Minute,
		ModQueueCheckInterval: 10 * time.Minute,
		SpamScanInterval:      15 * time.Minute,
		ContentCacheTTL:       20 * time.Second,
		AuthorStatsTTL:        0,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	ints := []struct {
		name string
		dst  *int
	}{
		{"QUEUE_BATCH_SIZE", &cfg.QueueBatchSize},
		{"PRUNE_LIMIT", &cfg.PruneLimit},
	}
	for _, v := range ints {
		if *v.dst, err = intEnv(v.name, *v.dst); err != nil {
			logger.Errorw("Invalid integer setting", "name", v.name, "error", err)
			return nil, err
		}
	}
	if cfg.NodeID, err = int64Env("NODE_ID", 1); err != nil {
		logger.Errorw("Invalid NODE_ID", "error", err)
		return nil, err
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"QUEUE_TASK_DELAY", &cfg.QueueTaskDelay},
		{"LEASE_TTL", &cfg.LeaseTTL},
		{"WORKER_INTERVAL", &cfg.WorkerInterval},
		{"PRUNE_INTERVAL", &cfg.PruneInterval},
		{"PRUNE_MAX_AGE", &cfg.PruneMaxAge},
		{"MODMAIL_SYNC_INTERVAL", &cfg.ModMailSyncInterval},
		{"MODQUEUE_CHECK_INTERVAL", &cfg.ModQueueCheckInterval},
		{"SPAM_SCAN_INTERVAL", &cfg.SpamScanInterval},
		{"CONTENT_CACHE_TTL", &cfg.ContentCacheTTL},
		{"AUTHOR_STATS_TTL", &cfg.AuthorStatsTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.name, *d.dst); err != nil {
			logger.Errorw("Invalid duration setting", "name", d.name, "error", err)
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Errorw("Invalid configuration", "error", err)
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return cfg, nil
}

// Validate checks required values and normalizes bounded ones.
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.Subreddit == "" {
		return fmt.Errorf("SUBREDDIT is required")
	}
	if c.HTTPAddr != "" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when HTTP_ADDR is set")
	}
	c.QueueBatchSize = clamp(c.QueueBatchSize, 1, MaxBatchSize)
	if c.PruneLimit <= 0 {
		c.PruneLimit = 1000
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("LEASE_TTL must be positive")
	}
	return nil
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func int64Env(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}
