package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/llm/llmtest"
	"github.com/jonathan/job-matcher/internal/pipeline"
	"github.com/jonathan/job-matcher/internal/progress"
	"github.com/jonathan/job-matcher/internal/storage"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]string

func (f fakeResolver) ResolveDownloadURL(_ context.Context, ref string) (*storage.FileURL, error) {
	url, ok := f[ref]
	if !ok {
		return nil, &storage.NotFoundError{Ref: ref}
	}
	return &storage.FileURL{URL: url, ContentType: "application/pdf"}, nil
}

// testEnv wires a full in-memory workflow stack.
type testEnv struct {
	client   *llmtest.StubClient
	runs     *MemoryRunStore
	progress *progress.MemoryStore
	tracker  *progress.Tracker
	results  *pipeline.MemoryResultStore
	runner   *StepRunner
	engine   *LocalEngine
	svc      *Service
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func newTestEnv(t *testing.T, client *llmtest.StubClient) *testEnv {
	t.Helper()
	env := &testEnv{
		client:   client,
		runs:     NewMemoryRunStore(),
		progress: progress.NewMemoryStore(),
		results:  pipeline.NewMemoryResultStore(),
	}
	env.tracker = progress.NewTracker(env.progress, nil)
	p := pipeline.New(pipeline.Deps{
		LLM:      client,
		Files:    fakeResolver{"cv-1": "https://files.example.com/cv-1.pdf"},
		Listings: listings.NewMemoryStore(reactListing()),
		Results:  env.results,
	}, pipeline.Options{})
	env.runner = NewStepRunner(p, env.runs, env.tracker, nil)
	env.engine = NewLocalEngine(env.runs, env.runner, fastRetry(), nil)
	env.svc = NewService(env.runs, env.tracker, env.engine, env.results, env.runner, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.engine.Shutdown(ctx)
	})
	return env
}

// storedRun creates a running run directly in the store, bypassing the engine.
func (e *testEnv) storedRun(t *testing.T, cvRef string) *types.WorkflowRun {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	trackingID, err := e.tracker.Create(ctx, userID)
	require.NoError(t, err)
	run := &types.WorkflowRun{
		ID:         uuid.New(),
		UserID:     userID,
		CVRef:      cvRef,
		TrackingID: trackingID,
		Status:     types.RunRunning,
		Engine:     EngineLocal,
	}
	require.NoError(t, e.runs.CreateRun(ctx, run))
	return run
}

func testProfile() *types.CVProfile {
	return &types.CVProfile{
		Skills:             []string{"React", "TypeScript"},
		ExperienceLevel:    types.ExperienceMid,
		JobTitles:          []string{"Frontend Developer"},
		Industries:         []string{"Software"},
		Keywords:           []string{"web"},
		Education:          "BSc",
		YearsOfExperience:  3,
		PreferredLocations: []string{"Berlin"},
	}
}

func reactListing() types.JobListing {
	return types.JobListing{
		ID:          "job-react",
		Title:       "React Developer",
		Description: "Build user interfaces with React and TypeScript.",
		Company:     "Acme",
		Location:    "Berlin",
		SourceName:  "board",
		SourceURL:   "https://jobs.example.com/react",
	}
}

// stubAll answers every completion the pipeline makes.
func stubAll() *llmtest.StubClient {
	return llmtest.NewStubClient().
		On("parse_cv", testProfile()).
		On("tune_search", &types.SearchParameters{
			PrimaryKeywords:   []string{"React"},
			SecondaryKeywords: []string{},
			SearchTerms:       []string{"React developer"},
			JobTitleKeywords:  []string{"Frontend Developer"},
			TechnicalSkills:   []string{"React", "TypeScript"},
		}).
		On("job_analysis", `{"level":"excellent_match","score":0.9,"reasons":["React"],"gaps":[]}`).
		On("rank_batch", `{"ranked_jobs":[{"job_id":"job-react","match_reasons":["React"],"concerns":[]}],
			"insights":{"top_skills_in_demand":["React"],"salary_insights":"n/a","market_observations":"n/a","search_strategy":"n/a"}}`).
		On("extract_details", `{"salary_min":null,"salary_max":null,"currency":null,"company":"Acme","job_type":"full-time"}`)
}
