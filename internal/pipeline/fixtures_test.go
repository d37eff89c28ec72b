package pipeline

import (
	"context"
	"testing"

	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/llm/llmtest"
	"github.com/jonathan/job-matcher/internal/storage"
	"github.com/jonathan/job-matcher/internal/types"
)

// fakeResolver resolves refs listed in files.
type fakeResolver map[string]string

func (f fakeResolver) ResolveDownloadURL(_ context.Context, ref string) (*storage.FileURL, error) {
	url, ok := f[ref]
	if !ok {
		return nil, &storage.NotFoundError{Ref: ref}
	}
	return &storage.FileURL{URL: url, ContentType: "application/pdf"}, nil
}

func ptr[T any](v T) *T { return &v }

func testProfile() *types.CVProfile {
	return &types.CVProfile{
		Skills:             []string{"React", "TypeScript", "Go"},
		ExperienceLevel:    types.ExperienceMid,
		JobTitles:          []string{"Frontend Developer"},
		Industries:         []string{"Software"},
		Keywords:           []string{"web applications"},
		Education:          "BSc Computer Science",
		YearsOfExperience:  4,
		PreferredLocations: []string{"Berlin"},
	}
}

func reactListing() types.JobListing {
	return types.JobListing{
		ID:          "job-react",
		Title:       "React Developer",
		Description: "Build user interfaces with React and TypeScript.",
		Company:     "Acme",
		Location:    "Berlin, Germany",
		SourceName:  "board",
		SourceURL:   "https://jobs.example.com/react",
	}
}

func rustListing() types.JobListing {
	return types.JobListing{
		ID:          "job-rust",
		Title:       "Rust Engineer",
		Description: "Systems work in Rust. React knowledge is a plus.",
		Location:    "Remote",
		SourceName:  "board",
		SourceURL:   "https://jobs.example.com/rust",
	}
}

func goodAnalysis(score float64) map[string]any {
	return map[string]any{
		"level":        "good_match",
		"score":        score,
		"reasons":      []string{"strong React background"},
		"gaps":         []string{},
		"requirements": []string{"React"},
		"benefits":     []string{"remote days"},
	}
}

func testParams() *types.SearchParameters {
	return &types.SearchParameters{
		PrimaryKeywords:   []string{"React"},
		SecondaryKeywords: []string{},
		SearchTerms:       []string{"React developer"},
		JobTitleKeywords:  []string{"Frontend Developer"},
		TechnicalSkills:   []string{"React", "TypeScript"},
	}
}

func newTestPipeline(t *testing.T, client llm.Client, store listings.Store) (*Pipeline, *MemoryResultStore) {
	t.Helper()
	results := NewMemoryResultStore()
	p := New(Deps{
		LLM:      client,
		Files:    fakeResolver{"cv-1": "https://files.example.com/cv-1.pdf"},
		Listings: store,
		Results:  results,
	}, Options{})
	return p, results
}

// stubForAll registers successful responses for every stage.
func stubForAll() *llmtest.StubClient {
	return llmtest.NewStubClient().
		On("parse_cv", testProfile()).
		On("tune_search", testParams()).
		On("job_analysis", goodAnalysis(0.85)).
		On("rank_batch", map[string]any{
			"ranked_jobs": []map[string]any{
				{"job_id": "job-react", "match_reasons": []string{"React and TypeScript"}, "concerns": []string{}},
			},
			"insights": map[string]any{
				"top_skills_in_demand": []string{"React"},
				"salary_insights":      "Pay is rarely stated.",
				"market_observations":  "Steady demand for React.",
				"search_strategy":      "Focus on frontend titles.",
			},
		}).
		On("extract_details", map[string]any{
			"salary_min": 60000,
			"salary_max": 80000,
			"currency":   "EUR",
			"company":    "Acme",
			"job_type":   "Full-Time",
		})
}
