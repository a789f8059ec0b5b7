package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.BadgePollInterval)
	assert.Equal(t, 400*time.Millisecond, cfg.ViewDebounce)
	assert.Equal(t, 400*time.Millisecond, cfg.TrackerDebounce)
	assert.Equal(t, 4500*time.Millisecond, cfg.ToastTTL)
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: memory\nbadge_poll_interval: 20s\nallowed_origins:\n  - https://ops.example.com\n"), 0o600))

	t.Setenv("BADGE_POLL_INTERVAL", "5s")
	t.Setenv("TRACKER_POLL_INTERVAL", "7s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.BadgePollInterval)
	assert.Equal(t, 7*time.Second, cfg.TrackerPollInterval)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE", "etcd")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store")
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Store = "postgres"
	cfg.DatabaseURL = " "
	assert.Error(t, cfg.Validate())
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitOrigins([]string{"a, b"}))
	assert.Equal(t, []string{"*"}, splitOrigins(nil))
}

func TestValidate_RedisNeedsURL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.PushChannel)
	cfg.PushChannel = "redis"
	cfg.RedisURL = ""
	assert.Error(t, cfg.Validate())
}
