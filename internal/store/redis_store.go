package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	chronoKey        = "chrono:log:index"
	activeModmailKey = "index:modmail:active"
)

func linkKey(messageID string) string { return "log:d:" + messageID }
func indexKey(sourceID string) string { return "index:r:" + sourceID }

var deleteLinkScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
if redis.call('ZCARD', KEYS[2]) == 0 then
	redis.call('DEL', KEYS[2])
end
return 1
`)

var updateStateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1])
return 1
`)

type RedisStore struct {
	client *redis.Client
	logger *log.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, logger *log.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("store"),
		now:    time.Now,
	}
}

func (s *RedisStore) RecordLink(ctx context.Context, entry LinkEntry) error {
	stamp(&entry, s.now())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, linkKey(entry.MessageID), map[string]interface{}{
		"sourceId":       entry.SourceID,
		"messageId":      entry.MessageID,
		"channel":        string(entry.Channel),
		"state":          string(entry.State),
		"endpoint":       entry.Endpoint,
		"createdAt":      entry.CreatedAt.Format(time.RFC3339Nano),
		"createdAtEpoch": entry.CreatedAtEpoch,
	})
	pipe.ZAdd(ctx, indexKey(entry.SourceID), redis.Z{Score: float64(entry.CreatedAtEpoch), Member: entry.MessageID})
	pipe.ZAdd(ctx, chronoKey, redis.Z{Score: float64(entry.CreatedAtEpoch), Member: entry.MessageID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record link: %w", err)
	}
	return nil
}

func (s *RedisStore) GetLink(ctx context.Context, messageID string) (LinkEntry, error) {
	fields, err := s.client.HGetAll(ctx, linkKey(messageID)).Result()
	if err != nil {
		return LinkEntry{}, fmt.Errorf("get link: %w", err)
	}
	if len(fields) == 0 {
		return LinkEntry{}, ErrNotFound
	}
	return decodeLink(fields), nil
}

// FindLinks returns every link recorded for sourceID. Index members whose
// record has gone are removed from the index as a side effect.
func (s *RedisStore) FindLinks(ctx context.Context, sourceID string) ([]LinkEntry, error) {
	ids, err := s.client.ZRange(ctx, indexKey(sourceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read link index: %w", err)
	}
	entries, dangling, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(dangling) > 0 {
		members := make([]interface{}, len(dangling))
		for i, d := range dangling {
			members[i] = d
		}
		if err := s.client.ZRem(ctx, indexKey(sourceID), members...).Err(); err != nil {
			s.logger.Warnw("Failed to heal link index", "source_id", sourceID, "error", err)
		} else {
			s.logger.Infow("Removed dangling index entries", "source_id", sourceID, "count", len(dangling))
		}
	}
	return entries, nil
}

func (s *RedisStore) UpdateState(ctx context.Context, messageID string, state model.State) error {
	n, err := updateStateScript.Run(ctx, s.client, []string{linkKey(messageID)}, string(state)).Int()
	if err != nil {
		return fmt.Errorf("update link state: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteLink(ctx context.Context, entry LinkEntry) error {
	keys := []string{linkKey(entry.MessageID), indexKey(entry.SourceID), chronoKey}
	if err := deleteLinkScript.Run(ctx, s.client, keys, entry.MessageID).Err(); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

func (s *RedisStore) FindExpired(ctx context.Context, maxAge time.Duration, limit int) ([]string, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	ids, err := s.client.ZRangeByScore(ctx, chronoKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff, 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("find expired links: %w", err)
	}
	return ids, nil
}

// RecentLinks returns up to limit of the newest links, newest first.
func (s *RedisStore) RecentLinks(ctx context.Context, limit int) ([]LinkEntry, error) {
	ids, err := s.client.ZRevRange(ctx, chronoKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read chronological index: %w", err)
	}
	entries, _, err := s.load(ctx, ids)
	return entries, err
}

func (s *RedisStore) TrackActive(ctx context.Context, conversationID string) error {
	err := s.client.ZAdd(ctx, activeModmailKey, redis.Z{Score: float64(s.now().UnixMilli()), Member: conversationID}).Err()
	if err != nil {
		return fmt.Errorf("track conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) UntrackActive(ctx context.Context, conversationID string) error {
	if err := s.client.ZRem(ctx, activeModmailKey, conversationID).Err(); err != nil {
		return fmt.Errorf("untrack conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, activeModmailKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) load(ctx context.Context, ids []string) ([]LinkEntry, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, linkKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("load links: %w", err)
	}
	var entries []LinkEntry
	var dangling []string
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			dangling = append(dangling, ids[i])
			continue
		}
		entries = append(entries, decodeLink(fields))
	}
	return entries, dangling, nil
}

func decodeLink(fields map[string]string) LinkEntry {
	epoch, _ := strconv.ParseInt(fields["createdAtEpoch"], 10, 64)
	created, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		created = time.Unix(epoch, 0).UTC()
	}
	return LinkEntry{
		SourceID:       fields["sourceId"],
		MessageID:      fields["messageId"],
		Channel:        model.ChannelClass(fields["channel"]),
		State:          model.State(fields["state"]),
		Endpoint:       fields["endpoint"],
		CreatedAt:      created,
		CreatedAtEpoch: epoch,
	}
}
