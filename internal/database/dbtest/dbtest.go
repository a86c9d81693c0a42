// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/isdelr/goals-be/internal/database"
)

// Open returns a migrated SQLite database living in t.TempDir(). It is
// closed when the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(string(database.DialectSQLite), filepath.Join(t.TempDir(), "goals.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
