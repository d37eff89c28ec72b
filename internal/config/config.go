// Package config loads service configuration from defaults, an optional config file
// and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JOBMATCH_LLM_PROVIDER.
const EnvPrefix = "JOBMATCH"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Progress ProgressConfig `mapstructure:"progress"`
	Listings ListingsConfig `mapstructure:"listings"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Search   SearchConfig   `mapstructure:"search"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	RateLimit       float64       `mapstructure:"rate-limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate-burst" validate:"gte=0"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig configures zap.
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// LLMConfig configures the structured completion client.
type LLMConfig struct {
	Provider          string            `mapstructure:"provider" validate:"oneof=gemini vertex"`
	APIKey            string            `mapstructure:"api-key"`
	Project           string            `mapstructure:"project"`
	Location          string            `mapstructure:"location"`
	Models            map[string]string `mapstructure:"models"`
	RequestsPerSecond float64           `mapstructure:"requests-per-second" validate:"gte=0"`
	Burst             int               `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration     `mapstructure:"timeout"`
}

// StorageConfig configures CV file resolution.
type StorageConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=gcs local"`
	Bucket       string        `mapstructure:"bucket"`
	SignedURLTTL time.Duration `mapstructure:"signed-url-ttl"`
	LocalDir     string        `mapstructure:"local-dir"`
	// UploadPrefix is the object prefix whose uploads start a workflow.
	UploadPrefix string        `mapstructure:"upload-prefix"`
}

// ProgressConfig selects the progress record store.
type ProgressConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=postgres firestore memory"`
	Project    string `mapstructure:"project"`
	Collection string `mapstructure:"collection"`
}

// ListingsConfig selects the job listing store.
type ListingsConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=postgres sqlite"`
	SQLitePath string `mapstructure:"sqlite-path"`
}

// WorkflowConfig selects and tunes the workflow engine.
type WorkflowConfig struct {
	Engine         string        `mapstructure:"engine" validate:"oneof=local cloudworkflows"`
	MaxAttempts    int           `mapstructure:"max-attempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	Project        string        `mapstructure:"project"`
	Location       string        `mapstructure:"location"`
	WorkflowID     string        `mapstructure:"workflow-id"`
}

// SearchConfig tunes the SearchJobs and CombineAndRank stages.
type SearchConfig struct {
	PerQueryLimit       int `mapstructure:"per-query-limit" validate:"gte=1"`
	MaxResults          int `mapstructure:"max-results" validate:"gte=1"`
	AnalysisConcurrency int `mapstructure:"analysis-concurrency" validate:"gte=1"`
	ExtractionBatchSize int `mapstructure:"extraction-batch-size" validate:"gte=1"`
}

// defaults registers every key so AutomaticEnv can override it.
var defaults = map[string]any{
	"server.port":             8080,
	"server.shutdown-timeout": 30 * time.Second,
	"server.rate-limit":       0.2,
	"server.rate-burst":       3,

	"database.url": "",

	"log.json":  false,
	"log.debug": false,

	"auth.secret":           "",
	"auth.expiration-hours": 24,
	"auth.issuer":           "job-matcher",
	"auth.stage-secret":     "",

	"llm.provider":            "gemini",
	"llm.api-key":             "",
	"llm.project":             "",
	"llm.location":            "us-central1",
	"llm.models":              map[string]string{},
	"llm.requests-per-second": 5.0,
	"llm.burst":               5,
	"llm.timeout":             90 * time.Second,

	"storage.backend":        "gcs",
	"storage.bucket":         "",
	"storage.signed-url-ttl": 15 * time.Minute,
	"storage.local-dir":      ".",
	"storage.upload-prefix":  "cvs/",

	"progress.backend":    "postgres",
	"progress.project":    "",
	"progress.collection": "progress",

	"listings.backend":     "postgres",
	"listings.sqlite-path": "listings.db",

	"workflow.engine":          "local",
	"workflow.max-attempts":    3,
	"workflow.initial-backoff": 500 * time.Millisecond,
	"workflow.max-backoff":     10 * time.Second,
	"workflow.project":         "",
	"workflow.location":        "us-central1",
	"workflow.workflow-id":     "job-search-pipeline",

	"search.per-query-limit":       10,
	"search.max-results":           20,
	"search.analysis-concurrency":  5,
	"search.extraction-batch-size": 10,
}

// legacyEnv binds the plain environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"database.url":          "DATABASE_URL",
	"llm.api-key":           "GEMINI_API_KEY",
	"auth.secret":           "JWT_SECRET",
	"auth.expiration-hours": "JWT_EXPIRATION_HOURS",
	"storage.bucket":        "CV_BUCKET",
	"llm.project":           "GOOGLE_CLOUD_PROJECT",
}

// Load reads configuration. path may be empty, in which case only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations. Credentials are checked by the
// commands that need them (see RequireDatabase, RequireLLM).
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Workflow.MaxBackoff < c.Workflow.InitialBackoff {
		return fmt.Errorf("config error: workflow.max-backoff must be >= workflow.initial-backoff")
	}
	if c.Storage.Backend == "gcs" && c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("config error: storage.signed-url-ttl must be positive")
	}
	return c.Auth.normalize()
}

// RequireDatabase fails when no PostgreSQL URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return nil
}

// RequireLLM fails when the selected provider is missing its credentials.
func (c *Config) RequireLLM() error {
	switch c.LLM.Provider {
	case "vertex":
		if c.LLM.Project == "" {
			return fmt.Errorf("llm.project (GOOGLE_CLOUD_PROJECT) is required for the vertex provider")
		}
	default:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	}
	return nil
}

// NeedsDatabase reports whether any configured backend is PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Progress.Backend == "postgres" || c.Listings.Backend == "postgres" || c.Database.URL != ""
}
