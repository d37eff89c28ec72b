package ratelimit

import (
	"net/http"
	"time"

	"github.com/jonathan/job-matcher/internal/config"
)

// EndpointConfig is the rate applied to one route.
type EndpointConfig struct {
	Path   string        // Exact path, or a prefix when it ends with "/"
	Method string        // HTTP method
	Limit  int           // Requests per Window
	Window time.Duration // Window the limit applies to
	Burst  int           // Burst capacity, defaults to Limit
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	EndpointConfigs []EndpointConfig
}

// FromServerConfig derives the limiter configuration from the server settings.
// Workflow submissions start a full pipeline and get the configured per-client rate;
// a zero rate disables limiting.
func FromServerConfig(cfg config.ServerConfig) *Config {
	if cfg.RateLimit <= 0 {
		return &Config{Enabled: false}
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	// RateLimit is requests per second; express it per minute to keep integer limits.
	perMinute := int(cfg.RateLimit * 60)
	if perMinute < 1 {
		perMinute = 1
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		EndpointConfigs: []EndpointConfig{
			{Path: "/workflows", Method: http.MethodPost, Limit: perMinute, Window: time.Minute, Burst: burst},
			{Path: "/workflows/", Method: http.MethodPost, Limit: 100, Window: time.Minute, Burst: 10},
		},
	}
}
