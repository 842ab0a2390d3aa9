// Package config provides configuration management for the tokbox TUI.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the TUI configuration.
type Config struct {
	// Server is the base URL of the tokbox API.
	Server string
	// APIKey is sent as X-API-Key to the ops endpoints.
	APIKey string

	StatusRefresh time.Duration
	EventLimit    int
}

// Load returns configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Server:        getEnv("TOKBOX_SERVER", "http://localhost:8080"),
		APIKey:        getEnv("TOKBOX_OPS_API_KEY", ""),
		StatusRefresh: getDuration("TOKBOX_STATUS_REFRESH", 5*time.Second),
		EventLimit:    getInt("TOKBOX_EVENT_LIMIT", 100),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}
