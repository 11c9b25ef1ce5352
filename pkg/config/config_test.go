package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Development())
	assert.Equal(t, 10, cfg.TenantPoolSize)
	assert.Equal(t, 5*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, 500, cfg.BatchMaxBuffer)
	assert.Equal(t, 100, cfg.BatchMaxPerFlush)
	assert.Equal(t, 15*time.Minute, cfg.AlertCooldown)
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PricingTTL)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("HIVE_ENV", "development")
	t.Setenv("BATCH_FLUSH_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Development())
	assert.Equal(t, 2*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr())
}

func TestValidateFlushBounds(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BATCH_MAX_BUFFER", "10")
	t.Setenv("BATCH_MAX_PER_FLUSH", "50")

	_, err := Load()
	require.Error(t, err, "per-flush above buffer size is rejected")
}
