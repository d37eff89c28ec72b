package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/llm/llmtest"
	"github.com/jonathan/job-matcher/internal/pipeline"
	"github.com/jonathan/job-matcher/internal/progress"
	"github.com/jonathan/job-matcher/internal/server/ratelimit"
	"github.com/jonathan/job-matcher/internal/storage"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/jonathan/job-matcher/internal/workflow"
	"github.com/stretchr/testify/require"
)

const testStageSecret = "stage-secret"

type fakeResolver map[string]string

func (f fakeResolver) ResolveDownloadURL(_ context.Context, ref string) (*storage.FileURL, error) {
	url, ok := f[ref]
	if !ok {
		return nil, &storage.NotFoundError{Ref: ref}
	}
	return &storage.FileURL{URL: url, ContentType: "application/pdf"}, nil
}

type testServer struct {
	handler http.Handler
	svc     *workflow.Service
	client  *llmtest.StubClient
	runs    *workflow.MemoryRunStore
	tracker *progress.Tracker
	engine  *workflow.LocalEngine
	jwt     *JWTService
}

type serverOption func(*Options)

func withLimiter(cfg *ratelimit.Config) serverOption {
	return func(o *Options) { o.RateLimiter = ratelimit.NewLimiter(cfg) }
}

func newTestServer(t *testing.T, client *llmtest.StubClient, opts ...serverOption) *testServer {
	t.Helper()
	runs := workflow.NewMemoryRunStore()
	results := pipeline.NewMemoryResultStore()
	tracker := progress.NewTracker(progress.NewMemoryStore(), nil)
	p := pipeline.New(pipeline.Deps{
		LLM:      client,
		Files:    fakeResolver{"cv-1": "https://files.example.com/cv-1.pdf"},
		Listings: listings.NewMemoryStore(reactListing()),
		Results:  results,
	}, pipeline.Options{})
	runner := workflow.NewStepRunner(p, runs, tracker, nil)
	policy := workflow.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	engine := workflow.NewLocalEngine(runs, runner, policy, nil)
	svc := workflow.NewService(runs, tracker, engine, results, runner, nil)
	jwtSvc := NewJWTService(config.AuthConfig{Secret: testSecret, ExpirationHours: 1})

	o := Options{
		Service:      svc,
		Tokens:       jwtSvc.AsTokenValidator(),
		StageSecret:  testStageSecret,
		PollInterval: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		if o.RateLimiter != nil {
			o.RateLimiter.Stop()
		}
	})

	return &testServer{handler: srv.Handler(), svc: svc, client: client, runs: runs, tracker: tracker, engine: engine, jwt: jwtSvc}
}

func (ts *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

// do sends a request as userID; uuid.Nil sends it without a token.
func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, userID))
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) stage(t *testing.T, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	if secret != "" {
		req.Header.Set("X-Stage-Secret", secret)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) storedRun(t *testing.T, userID uuid.UUID, cvRef string) *types.WorkflowRun {
	t.Helper()
	ctx := context.Background()
	trackingID, err := ts.tracker.Create(ctx, userID)
	require.NoError(t, err)
	run := &types.WorkflowRun{
		ID:         uuid.New(),
		UserID:     userID,
		CVRef:      cvRef,
		TrackingID: trackingID,
		Status:     types.RunRunning,
		Engine:     workflow.EngineCloudWorkflows,
	}
	require.NoError(t, ts.runs.CreateRun(ctx, run))
	return run
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
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
