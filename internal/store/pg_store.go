package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps links in a single table. Both indexes are plain
// btree indexes, so FindLinks never sees dangling references.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string, logger *log.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger.Named("store"), now: time.Now}, nil
}

func (s *PostgresStore) RecordLink(ctx context.Context, entry LinkEntry) error {
	stamp(&entry, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (message_id, source_id, channel, state, endpoint, created_at, created_at_epoch)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			channel = EXCLUDED.channel,
			state = EXCLUDED.state,
			endpoint = EXCLUDED.endpoint,
			created_at = EXCLUDED.created_at,
			created_at_epoch = EXCLUDED.created_at_epoch`,
		entry.MessageID, entry.SourceID, string(entry.Channel), string(entry.State),
		entry.Endpoint, entry.CreatedAt, entry.CreatedAtEpoch,
	)
	if err != nil {
		return fmt.Errorf("record link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLink(ctx context.Context, messageID string) (LinkEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, message_id, channel, state, endpoint, created_at, created_at_epoch
		FROM links WHERE message_id = $1`, messageID)
	entry, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkEntry{}, ErrNotFound
	}
	if err != nil {
		return LinkEntry{}, fmt.Errorf("get link: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) FindLinks(ctx context.Context, sourceID string) ([]LinkEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, message_id, channel, state, endpoint, created_at, created_at_epoch
		FROM links WHERE source_id = $1 ORDER BY created_at_epoch, message_id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("find links: %w", err)
	}
	return collectLinks(rows)
}

func (s *PostgresStore) UpdateState(ctx context.Context, messageID string, state model.State) error {
	res, err := s.db.ExecContext(ctx, `UPDATE links SET state = $1 WHERE message_id = $2`, string(state), messageID)
	if err != nil {
		return fmt.Errorf("update link state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update link state: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteLink(ctx context.Context, entry LinkEntry) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE message_id = $1`, entry.MessageID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindExpired(ctx context.Context, maxAge time.Duration, limit int) ([]string, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id FROM links
		WHERE created_at_epoch <= $1
		ORDER BY created_at_epoch
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired links: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) RecentLinks(ctx context.Context, limit int) ([]LinkEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, message_id, channel, state, endpoint, created_at, created_at_epoch
		FROM links ORDER BY created_at_epoch DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent links: %w", err)
	}
	return collectLinks(rows)
}

func (s *PostgresStore) TrackActive(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_conversations (conversation_id, tracked_at) VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET tracked_at = EXCLUDED.tracked_at`,
		conversationID, s.now())
	if err != nil {
		return fmt.Errorf("track conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UntrackActive(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_conversations WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("untrack conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM active_conversations ORDER BY tracked_at`)
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (LinkEntry, error) {
	var e LinkEntry
	var channel, state string
	if err := row.Scan(&e.SourceID, &e.MessageID, &channel, &state, &e.Endpoint, &e.CreatedAt, &e.CreatedAtEpoch); err != nil {
		return LinkEntry{}, err
	}
	e.Channel = model.ChannelClass(channel)
	e.State = model.State(state)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func collectLinks(rows *sql.Rows) ([]LinkEntry, error) {
	defer rows.Close()
	var out []LinkEntry
	for rows.Next() {
		e, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}
