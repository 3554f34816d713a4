package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AUDIT_STORE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "firestore", cfg.Audit.Store)
	assert.Equal(t, 10, cfg.Audit.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Audit.FlushInterval)
	assert.Equal(t, 3*time.Second, cfg.Auth.ReadyTimeout)
	assert.Equal(t, DefaultAllowedOrigins, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("AUDIT_FLUSH_INTERVAL", "250ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Audit.FlushInterval)
	assert.True(t, cfg.Redis.Enabled())
}

func TestValidate(t *testing.T) {
	t.Run("postgres store requires dsn", func(t *testing.T) {
		t.Setenv("AUDIT_STORE", "postgres")
		t.Setenv("AUDIT_PG_DSN", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("AUDIT_STORE", "bigtable")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("max buffered below buffer size", func(t *testing.T) {
		t.Setenv("AUDIT_BUFFER_SIZE", "20")
		t.Setenv("AUDIT_MAX_BUFFERED", "5")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid int falls back to default", func(t *testing.T) {
		t.Setenv("AUDIT_BUFFER_SIZE", "ten")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Audit.BufferSize)
	})
}
