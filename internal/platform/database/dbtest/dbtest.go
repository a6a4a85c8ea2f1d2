// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"database/sql"
	"testing"

	"formsmith/internal/platform/config"
	"formsmith/internal/platform/database"
)

// New returns a fresh in-memory store with every migration applied. The
// store is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
