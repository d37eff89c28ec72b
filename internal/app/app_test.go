package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/llm/llmtest"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/jonathan/job-matcher/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cv.pdf"), []byte("%PDF-1.4"), 0o600))
	return &config.Config{
		Storage:  config.StorageConfig{Backend: "local", LocalDir: dir},
		Progress: config.ProgressConfig{Backend: "memory"},
		Listings: config.ListingsConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "listings.db")},
		Workflow: config.WorkflowConfig{Engine: "local", MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Search:   config.SearchConfig{PerQueryLimit: 5, MaxResults: 10, AnalysisConcurrency: 2, ExtractionBatchSize: 2},
	}
}

func stubClient() *llmtest.StubClient {
	return llmtest.NewStubClient().
		On("parse_cv", &types.CVProfile{
			Skills:             []string{"Go"},
			ExperienceLevel:    types.ExperienceSenior,
			JobTitles:          []string{"Backend Engineer"},
			Industries:         []string{"Software"},
			Keywords:           []string{"backend"},
			Education:          "MSc",
			YearsOfExperience:  8,
			PreferredLocations: []string{"Remote"},
		}).
		On("tune_search", &types.SearchParameters{
			PrimaryKeywords:   []string{"Go"},
			SecondaryKeywords: []string{},
			SearchTerms:       []string{"Go"},
			JobTitleKeywords:  []string{"Backend Engineer"},
			TechnicalSkills:   []string{"Go"},
		}).
		On("job_analysis", `{"level":"good_match","score":0.7,"reasons":["Go"],"gaps":[]}`).
		On("rank_batch", `{"ranked_jobs":[],"insights":{"top_skills_in_demand":[],"salary_insights":"","market_observations":"","search_strategy":""}}`).
		On("extract_details", `{"salary_min":null,"salary_max":null,"currency":null,"company":null,"job_type":null}`)
}

func TestNew_InMemoryLocalRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, nil, Options{LLM: stubClient()})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close(context.Background())) })

	require.NotNil(t, a.Local)
	assert.Nil(t, a.DB)
	assert.Equal(t, workflow.EngineLocal, a.Engine.Name())

	userID := uuid.New()
	started, err := a.Service.StartWorkflow(ctx, userID, "cv.pdf")
	require.NoError(t, err)
	a.Local.Wait()

	status, err := a.Service.GetWorkflowStatus(ctx, started.WorkflowRunID, userID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, status.Type, status.Error)

	rec, err := a.Service.GetProgress(ctx, started.TrackingID, userID)
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Percentage)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("postgres progress needs a database", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Progress.Backend = "postgres"
		_, err := New(ctx, cfg, nil, Options{LLM: stubClient()})
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("cloud workflows needs a database", func(t *testing.T) {
		cfg := testConfig(t)
		_, err := New(ctx, cfg, nil, Options{LLM: stubClient(), Engine: workflow.EngineCloudWorkflows})
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("missing model credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Provider = "gemini"
		_, err := New(ctx, cfg, nil, Options{})
		assert.ErrorContains(t, err, "GEMINI_API_KEY")
	})

	t.Run("unknown engine", func(t *testing.T) {
		cfg := testConfig(t)
		_, err := New(ctx, cfg, nil, Options{LLM: stubClient(), Engine: "bogus"})
		assert.ErrorContains(t, err, "unknown workflow engine")
	})
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy(config.WorkflowConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Minute})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.Equal(t, time.Minute, p.MaxBackoff)
	assert.Equal(t, 2.0, p.Multiplier)

	assert.Equal(t, workflow.DefaultRetryPolicy(), RetryPolicy(config.WorkflowConfig{}))
}

func TestPipelineOptions(t *testing.T) {
	opts := PipelineOptions(config.SearchConfig{PerQueryLimit: 1, MaxResults: 2, AnalysisConcurrency: 3, ExtractionBatchSize: 4})
	assert.Equal(t, 1, opts.PerQueryLimit)
	assert.Equal(t, 2, opts.MaxResults)
	assert.Equal(t, 3, opts.AnalysisConcurrency)
	assert.Equal(t, 4, opts.ExtractionBatchSize)
}
