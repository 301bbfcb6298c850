//go:build integration

package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupTestDB(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_DB_URL"); url != "" {
		return url
	}
	ctx := context.Background()
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15"),
		postgres.WithDatabase("bridge"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("securepassword"),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	dbURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	// the container reports ready before it accepts connections
	require.Eventually(t, func() bool {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return false
		}
		defer db.Close()
		return db.PingContext(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)
	return dbURL
}

func TestPostgresStore(t *testing.T) {
	dbURL := setupTestDB(t)

	runStoreSuite(t, func(t *testing.T) clockedStore {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, dbURL, log.NewNop())
		require.NoError(t, err)
		_, err = s.db.ExecContext(ctx, "TRUNCATE TABLE links, active_conversations")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return clockedStore{Store: s, setNow: func(now time.Time) { s.now = func() time.Time { return now } }}
	})
}
