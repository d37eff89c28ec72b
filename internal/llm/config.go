// Package llm provides the structured completion client used by the pipeline stages.
// A completion takes a system prompt, user content and optional file attachments and
// returns JSON that is validated against a named schema before it is decoded.
package llm

import (
	"time"

	"github.com/jonathan/job-matcher/internal/config"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: classification, extraction, basic summarization
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: parsing, structured output
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: ranking and market insights
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Gemini API, authenticated with an API key
	ProviderGemini Provider = "gemini"
	// ProviderVertex is Gemini served from Vertex AI, authenticated with ADC
	ProviderVertex Provider = "vertex"
)

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
	APIKey      string
	Project     string
	Location    string
	// RequestsPerSecond limits completion calls across all stages; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: 0.1,
	}
}

// FromSettings builds a Config from the loaded service settings. Model overrides in
// settings replace the defaults tier by tier.
func FromSettings(s config.LLMConfig) *Config {
	cfg := DefaultGeminiConfig()
	cfg.Provider = Provider(s.Provider)
	if cfg.Provider == "" {
		cfg.Provider = ProviderGemini
	}
	for tier, model := range s.Models {
		if model != "" {
			cfg.Models[ModelTier(tier)] = model
		}
	}
	cfg.APIKey = s.APIKey
	cfg.Project = s.Project
	cfg.Location = s.Location
	cfg.RequestsPerSecond = s.RequestsPerSecond
	cfg.Burst = s.Burst
	cfg.Timeout = s.Timeout
	return cfg
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}
