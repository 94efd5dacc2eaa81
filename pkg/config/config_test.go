package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pharmaforge/forge/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("WATCHTOWER_SYNC_DELAY", "")
	t.Setenv("WATCHTOWER_SOURCES_FILE", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "localhost") // Default is local
	assert.Equal(t, 500*time.Millisecond, cfg.SyncDelay)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 60*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 120*time.Second, cfg.WorkflowTimeout)
	assert.Empty(t, cfg.SourcesFile)
	assert.False(t, cfg.TelemetryEnabled)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("WATCHTOWER_SYNC_DELAY", "2s")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, 2*time.Second, cfg.SyncDelay)
	assert.True(t, cfg.TelemetryEnabled)
}

// TestLoad_BareSecondsDuration verifies that duration vars also accept a
// bare number of seconds.
func TestLoad_BareSecondsDuration(t *testing.T) {
	t.Setenv("WATCHTOWER_SYNC_DELAY", "0.5")
	t.Setenv("WATCHTOWER_HTTP_TIMEOUT", "30")

	cfg := config.Load()

	assert.Equal(t, 500*time.Millisecond, cfg.SyncDelay)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
