package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLIDECAST_AUTH_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "./slidecast.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, "test-secret", cfg.Auth.Secret)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SLIDECAST_AUTH_SECRET", "test-secret")
	t.Setenv("SLIDECAST_HTTP_PORT", "9191")
	t.Setenv("SLIDECAST_SESSION_IDLE_TTL", "45m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleTTL)
}

func TestValidate(t *testing.T) {
	t.Setenv("SLIDECAST_AUTH_SECRET", "test-secret")
	base, err := Load("")
	require.NoError(t, err)

	t.Run("missing secret", func(t *testing.T) {
		cfg := *base
		cfg.Auth.Secret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := *base
		cfg.HTTP.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("read timeout below ping interval", func(t *testing.T) {
		cfg := *base
		cfg.WebSocket.ReadTimeout = cfg.WebSocket.PingInterval / 2
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty database path", func(t *testing.T) {
		cfg := *base
		cfg.Database.Path = ""
		assert.Error(t, cfg.Validate())
	})
}
