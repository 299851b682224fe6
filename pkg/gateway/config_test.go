package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg := ConfigFromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "filingmesh.db", cfg.DBPath)
	assert.Equal(t, 2*time.Minute, cfg.EntityIdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, int64(defaultMaxUploadBytes), cfg.MaxUploadBytes)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("FM_ADDR", ":9999")
	t.Setenv("FM_DB_PATH", "/var/lib/fm/events.db")
	t.Setenv("FM_ENTITY_IDLE_TIMEOUT", "45s")
	t.Setenv("FM_CALL_TIMEOUT", "not-a-duration")
	t.Setenv("FM_MAX_UPLOAD_BYTES", "1024")

	cfg := ConfigFromEnv()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/var/lib/fm/events.db", cfg.DBPath)
	assert.Equal(t, 45*time.Second, cfg.EntityIdleTimeout)
	// bad values fall back
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
}
