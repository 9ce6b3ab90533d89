package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 20, cfg.RateLimitRequests)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 15*time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, 3, cfg.HeartbeatRetries)
	assert.Equal(t, 5*time.Minute, cfg.SummaryTTL)
	assert.Equal(t, 2*time.Minute, cfg.WatchlistTTL)
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, "se", cfg.NordnetCountry)
	assert.Empty(t, cfg.APIToken)
}

func TestNew_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("HEARTBEAT_INTERVAL", "30s")
	t.Setenv("ENV", "production")
	t.Setenv("API_TOKEN", "s3cret")

	cfg := New()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.RateLimitRequests)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "production", cfg.Environment())
	assert.Equal(t, "s3cret", cfg.APIToken)
}

func TestNew_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HEARTBEAT_RETRIES", "many")
	t.Setenv("SUMMARY_TTL", "-1m")

	cfg := New()

	assert.Equal(t, 3, cfg.HeartbeatRetries)
	assert.Equal(t, 5*time.Minute, cfg.SummaryTTL)
}
