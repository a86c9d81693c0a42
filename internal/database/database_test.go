package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := New(string(DialectSQLite), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM goals WHERE id = ? AND user_id = ?"

	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, "SELECT id FROM goals WHERE id = $1 AND user_id = $2", rebind(DialectPostgres, q))
	assert.Equal(t, "SELECT 1", rebind(DialectPostgres, "SELECT 1"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", sqliteDSN("a.db"))
	assert.Equal(t, "file:a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", sqliteDSN("file:a.db?mode=rwc"))
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New("mysql", "x")
	assert.Error(t, err)
}

func TestMigrate_CreatesSchemaAndIsRepeatable(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "second run must be a no-op")

	for _, table := range []string{"users", "goals", "events"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	now := time.Now().UTC()
	insert := "INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := db.ExecContext(ctx, insert, "1", "alice", "", "a@x.com", "h", now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "2", "alice", "", "b@x.com", "h", now, now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	now := time.Now().UTC()
	boom := errors.New("boom")
	err := db.WithTx(ctx, func(q Querier) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			"1", "alice", "", "a@x.com", "h", now, now)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Zero(t, count)
}

func TestTimesRoundTrip(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := db.ExecContext(ctx,
		"INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"1", "alice", "", "a@x.com", "h", now, now)
	require.NoError(t, err)

	var got time.Time
	require.NoError(t, db.QueryRowContext(ctx, "SELECT created_at FROM users WHERE id = ?", "1").Scan(&got))
	assert.True(t, now.Equal(got), "want %s got %s", now, got)
}
