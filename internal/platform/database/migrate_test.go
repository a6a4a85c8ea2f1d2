package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsmith/internal/platform/config"
)

func TestMigrateUpAndDown(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	// second run is a no-op
	require.NoError(t, Migrate(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"forms", "fields", "edit_history", "submissions", "outbox_jobs", "export_tokens"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	require.NoError(t, Rollback(db, 0))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'forms'`).Scan(&count))
	assert.Zero(t, count)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(config.DatabaseConfig{})
	assert.Error(t, err)
}
