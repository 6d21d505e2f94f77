// Package testutil connects integration tests to a real Postgres.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/pkg/database"
)

// EnvDatabaseURL names the variable holding the test database DSN.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// NewPool returns a migrated pool, or skips the test when EnvDatabaseURL is unset.
// Tables are not truncated: packages run in parallel against the same database, so each
// test creates its own users and sessions. The pool is closed when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("Skipping integration test: %s not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{MaxConns: 8, StatementTimeout: 10 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash, name) VALUES ($1, 'x', $2) RETURNING id`,
		uuid.NewString()+"@example.com", name).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSession inserts a scheduled session hosted by host and returns its id.
func CreateSession(t *testing.T, pool *pgxpool.Pool, host uuid.UUID, title string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO livestream_sessions (room_code, host_id, title) VALUES ($1, $2, $3) RETURNING id`,
		uuid.NewString()[:16], host, title).Scan(&id)
	require.NoError(t, err)
	return id
}
