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
	cfg := Load()

	assert.Equal(t, "http://localhost:8090", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8090/ws", cfg.SocketURL)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
	assert.Equal(t, 3*time.Second, cfg.TypingDebounce)
	assert.Equal(t, 6*time.Second, cfg.TypingExpiry)
	assert.Equal(t, ":8090", cfg.ServerAddr)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messenger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base_url: https://api.eventflow.example
socket_url: wss://api.eventflow.example/ws
reconnect_max_attempts: 8
typing_debounce_ms: 1500
redis:
  url: redis://localhost:6379/2
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	assert.Equal(t, "https://api.eventflow.example", cfg.APIBaseURL)
	assert.Equal(t, "wss://api.eventflow.example/ws", cfg.SocketURL)
	assert.Equal(t, 8, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingDebounce)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)
	// Unset keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messenger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconnect_max_attempts: 8\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("TYPING_EXPIRY_MS", "9000")

	cfg := Load()
	assert.Equal(t, 3, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 9*time.Second, cfg.TypingExpiry)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("RECONNECT_BASE_DELAY_MS", "-100")

	cfg := Load()
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
}
