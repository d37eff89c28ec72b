package config

import (
	"fmt"
)

// AuthConfig holds the settings used to verify bearer tokens and to authenticate the
// workflow engine when it calls the internal stage endpoint.
type AuthConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration-hours"`
	Issuer          string `mapstructure:"issuer"`
	StageSecret     string `mapstructure:"stage-secret"`
}

// normalize validates the configuration. An empty secret is allowed here so that
// commands without an HTTP surface can load config; RequireAuth enforces it.
func (c *AuthConfig) normalize() error {
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}

// RequireAuth fails when no JWT secret is configured.
func (c *Config) RequireAuth() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	return nil
}
