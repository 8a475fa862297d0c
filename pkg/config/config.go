package config

import (
	"os"
	"strconv"
)

// Defaults for every knob; all environment variables are optional.
const (
	DefaultPort          = 4242
	DefaultDBPath        = "workshop.db"
	DefaultBlobDir       = "blobs"
	DefaultRetentionDays = 30
	DefaultMaxBlobMB     = 64
)

// Config holds server configuration
type Config struct {
	Port          int    // WORKSHOP_PORT
	DBPath        string // WORKSHOP_DB
	BlobDir       string // WORKSHOP_BLOB_DIR
	RetentionDays int    // WORKSHOP_RETENTION_DAYS
	Verbose       bool   // WORKSHOP_VERBOSE
	MaxBlobBytes  int64  // WORKSHOP_MAX_BLOB_MB
}

// FromEnv builds a Config from the environment, falling back to defaults
func FromEnv() Config {
	return Config{
		Port:          envInt("WORKSHOP_PORT", DefaultPort),
		DBPath:        envStr("WORKSHOP_DB", DefaultDBPath),
		BlobDir:       envStr("WORKSHOP_BLOB_DIR", DefaultBlobDir),
		RetentionDays: envInt("WORKSHOP_RETENTION_DAYS", DefaultRetentionDays),
		Verbose:       envBool("WORKSHOP_VERBOSE"),
		MaxBlobBytes:  int64(envInt("WORKSHOP_MAX_BLOB_MB", DefaultMaxBlobMB)) << 20,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
