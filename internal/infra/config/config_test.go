package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  token_secret: "0123456789abcdef0123456789abcdef"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "partyline.db", cfg.Store.Path)
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 30*time.Second, cfg.GraceWindow())
	assert.Equal(t, 200, cfg.Session.ChatHistory)
	assert.Equal(t, 512, cfg.Session.DeltaHistory)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 5*time.Second, cfg.CatalogTimeout())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
auth:
  token_secret: "0123456789abcdef0123456789abcdef"
session:
  tick_interval_ms: 250
  grace_window_sec: 5
filters:
  duration_limit_filter:
    enabled: true
    settings:
      max_minutes: 12
  pending_limit_filter:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.GraceWindow())
	assert.True(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("pending_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("no_such_filter"))
}

func TestLoadRequiresTokenSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PARTYLINE_TOKEN_SECRET", "env-secret-0123456789abcdef")

	path := writeConfig(t, `
auth:
  token_secret: "file-secret-0123456789abcdef"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret-0123456789abcdef", cfg.Auth.TokenSecret)
}

func TestLoadRejectsInvalidTick(t *testing.T) {
	path := writeConfig(t, `
auth:
  token_secret: "0123456789abcdef0123456789abcdef"
session:
  tick_interval_ms: 1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
