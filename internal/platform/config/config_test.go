package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
jwt:
  secret: s3cret
delivery:
  max_attempts: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Exports.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Exports.SweepInterval)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "formsmith", cfg.Events.SubjectPrefix)
}

func TestLoad_EventsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Events.Embedded)
	assert.Equal(t, 4222, cfg.Events.EmbeddedPort)
	assert.Equal(t, "formsmith", cfg.Events.SubjectPrefix)
}
