package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "local", cfg.Workflow.Engine)
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Workflow.InitialBackoff)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 10, cfg.Search.ExtractionBatchSize)
	assert.Equal(t, "cvs/", cfg.Storage.UploadPrefix)
	assert.Equal(t, 24, cfg.Auth.ExpirationHours, "should use default expiration of 24 hours")
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobs")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_EXPIRATION_HOURS", "12")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/jobs", cfg.Database.URL)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "test-secret-key", cfg.Auth.Secret)
	assert.Equal(t, 12, cfg.Auth.ExpirationHours)
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireLLM())
	assert.NoError(t, cfg.RequireAuth())
}

func TestLoad_PrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy")
	t.Setenv("JOBMATCH_LLM_API_KEY", "prefixed")
	t.Setenv("JOBMATCH_SEARCH_MAX_RESULTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Search.MaxResults)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobmatch.yaml")
	content := `
server:
  port: 9090
llm:
  provider: vertex
  project: my-project
  models:
    standard: gemini-2.5-flash
workflow:
  engine: cloudworkflows
  max-backoff: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "vertex", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Models["standard"])
	assert.Equal(t, "cloudworkflows", cfg.Workflow.Engine)
	assert.Equal(t, 30*time.Second, cfg.Workflow.MaxBackoff)
	assert.NoError(t, cfg.RequireLLM())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "unknown provider", env: map[string]string{"JOBMATCH_LLM_PROVIDER": "openai"}, wantErr: true},
		{name: "unknown engine", env: map[string]string{"JOBMATCH_WORKFLOW_ENGINE": "temporal"}, wantErr: true},
		{name: "zero attempts", env: map[string]string{"JOBMATCH_WORKFLOW_MAX_ATTEMPTS": "0"}, wantErr: true},
		{name: "backoff inverted", env: map[string]string{"JOBMATCH_WORKFLOW_MAX_BACKOFF": "1ms"}, wantErr: true},
		{name: "expiration below minimum", env: map[string]string{"JWT_EXPIRATION_HOURS": "0"}, wantErr: true},
		{name: "sqlite listings", env: map[string]string{"JOBMATCH_LISTINGS_BACKEND": "sqlite"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequireChecks(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "gemini"}}
	assert.Error(t, cfg.RequireDatabase())
	assert.Error(t, cfg.RequireLLM())
	assert.Error(t, cfg.RequireAuth())

	cfg.LLM.Provider = "vertex"
	assert.Error(t, cfg.RequireLLM())
	cfg.LLM.Project = "p"
	assert.NoError(t, cfg.RequireLLM())
}
