// Package config loads runtime configuration from the environment and the
// feed source profile file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	RedisAddr   string

	// Observability
	OTLPEndpoint     string
	TelemetryEnabled bool

	// Watchtower sync tuning
	SourcesFile   string        // optional YAML overriding the built-in source set
	SyncDelay     time.Duration // spacing between consecutive sources in a batch
	SyncInterval  time.Duration // period of the background SyncAll loop
	SourceTimeout time.Duration // per-source total budget
	HTTPTimeout   time.Duration // per-request budget

	// Golden workflow
	WorkflowTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://forge@localhost:5432/forge?sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",

		SourcesFile:   os.Getenv("WATCHTOWER_SOURCES_FILE"),
		SyncDelay:     getDuration("WATCHTOWER_SYNC_DELAY", 500*time.Millisecond),
		SyncInterval:  getDuration("WATCHTOWER_SYNC_INTERVAL", 15*time.Minute),
		SourceTimeout: getDuration("WATCHTOWER_SOURCE_TIMEOUT", 60*time.Second),
		HTTPTimeout:   getDuration("WATCHTOWER_HTTP_TIMEOUT", 15*time.Second),

		WorkflowTimeout: getDuration("WORKFLOW_TIMEOUT", 120*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration reads a duration env var, accepting Go duration syntax
// ("500ms", "1m") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
