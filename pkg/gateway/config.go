package gateway

import (
	"os"
	"strconv"
	"time"
)

// Config carries the environment-driven settings of one node.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// DBPath is the bolt file backing the event log store.
	DBPath string
	// EntityIdleTimeout deactivates entities that sit without
	// commands for this long.
	EntityIdleTimeout time.Duration
	// CallTimeout is the default deadline on entity request/response
	// commands.
	CallTimeout time.Duration
	// MaxUploadBytes caps an upload request body.
	MaxUploadBytes int64
}

// ConfigFromEnv reads settings from the environment, falling back to
// defaults suitable for local runs.
func ConfigFromEnv() Config {
	return Config{
		Addr:              envString("FM_ADDR", ":8080"),
		DBPath:            envString("FM_DB_PATH", "filingmesh.db"),
		EntityIdleTimeout: envDuration("FM_ENTITY_IDLE_TIMEOUT", 2*time.Minute),
		CallTimeout:       envDuration("FM_CALL_TIMEOUT", 5*time.Second),
		MaxUploadBytes:    envInt64("FM_MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
