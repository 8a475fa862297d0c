package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDefaults verifies every knob falls back when the environment is empty
func TestDefaults(t *testing.T) {
	for _, key := range []string{
		"WORKSHOP_PORT", "WORKSHOP_DB", "WORKSHOP_BLOB_DIR",
		"WORKSHOP_RETENTION_DAYS", "WORKSHOP_VERBOSE", "WORKSHOP_MAX_BLOB_MB",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultBlobDir, cfg.BlobDir)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, int64(DefaultMaxBlobMB)<<20, cfg.MaxBlobBytes)
}

// TestOverrides verifies environment variables take effect
func TestOverrides(t *testing.T) {
	t.Setenv("WORKSHOP_PORT", "8080")
	t.Setenv("WORKSHOP_DB", "/tmp/ws.db")
	t.Setenv("WORKSHOP_BLOB_DIR", "/tmp/blobs")
	t.Setenv("WORKSHOP_RETENTION_DAYS", "7")
	t.Setenv("WORKSHOP_VERBOSE", "true")
	t.Setenv("WORKSHOP_MAX_BLOB_MB", "8")

	cfg := FromEnv()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/ws.db", cfg.DBPath)
	assert.Equal(t, "/tmp/blobs", cfg.BlobDir)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, int64(8)<<20, cfg.MaxBlobBytes)
}

// TestBadValues verifies malformed numbers fall back to defaults
func TestBadValues(t *testing.T) {
	t.Setenv("WORKSHOP_PORT", "not-a-port")
	t.Setenv("WORKSHOP_RETENTION_DAYS", "-3")

	cfg := FromEnv()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
}
