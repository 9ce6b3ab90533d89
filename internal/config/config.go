// Package config provides application configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port string
	Host string

	// Storage settings
	DBPath  string
	KeyPath string // Per-install secret used for session encryption

	// Logging
	LogLevel string

	// APIToken guards /api routes when set
	APIToken string

	// Provider rate limiting (fixed window)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Heartbeat defaults
	HeartbeatInterval time.Duration
	HeartbeatRetries  int

	// Aggregation caches
	SummaryTTL   time.Duration
	WatchlistTTL time.Duration

	// Session extraction
	ExtractionTimeout time.Duration
	SessionLifetime   time.Duration

	// Background snapshot job (cron spec)
	SnapshotSchedule string

	// Provider base URL overrides
	RobinhoodBaseURL string
	WebullBaseURL    string
	NordnetBaseURL   string
	NordnetCountry   string // dk, se, no or fi

	// Environment
	IsDevelopment bool
}

// New creates a new Config with values from .env, environment variables or defaults.
func New() *Config {
	// A missing .env file is fine
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Host:              getEnv("HOST", "localhost"),
		DBPath:            getEnv("DB_PATH", filepath.Join("data", "bridge.db")),
		KeyPath:           getEnv("KEY_PATH", filepath.Join("data", "install.key")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		APIToken:          getEnv("API_TOKEN", ""),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 15*time.Minute),
		HeartbeatRetries:  getEnvInt("HEARTBEAT_RETRIES", 3),
		SummaryTTL:        getEnvDuration("SUMMARY_TTL", 5*time.Minute),
		WatchlistTTL:      getEnvDuration("WATCHLIST_TTL", 2*time.Minute),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 5*time.Second),
		SessionLifetime:   getEnvDuration("SESSION_LIFETIME", 24*time.Hour),
		SnapshotSchedule:  getEnv("SNAPSHOT_SCHEDULE", "@every 30m"),
		RobinhoodBaseURL:  getEnv("ROBINHOOD_BASE_URL", ""),
		WebullBaseURL:     getEnv("WEBULL_BASE_URL", ""),
		NordnetBaseURL:    getEnv("NORDNET_BASE_URL", ""),
		NordnetCountry:    getEnv("NORDNET_COUNTRY", "se"),
		IsDevelopment:     getEnv("ENV", "development") == "development",
	}
}

// Address returns the full address to bind the server to.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// Environment returns "development" or "production".
func (c *Config) Environment() string {
	if c.IsDevelopment {
		return "development"
	}
	return "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer variable, falling back on absence or bad input.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration parses a Go duration string such as "90s" or "15m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
