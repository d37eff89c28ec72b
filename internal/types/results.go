package types

import (
	"time"

	"github.com/google/uuid"
)

// SalaryRange is the aggregate salary band observed across extracted listings.
type SalaryRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// SummarySearchParams echoes the search strategy that produced a result set.
type SummarySearchParams struct {
	OptimizedKeywords []string     `json:"optimized_keywords"`
	TargetJobTitles   []string     `json:"target_job_titles"`
	TargetCompanies   []string     `json:"target_companies"`
	SalaryRange       *SalaryRange `json:"salary_range,omitempty"`
	PreferredJobTypes []string     `json:"preferred_job_types"`
	Locations         []string     `json:"locations"`
	Strategy          string       `json:"strategy"`
}

// SearchResultsSummary aggregates one workflow run's results.
type SearchResultsSummary struct {
	TotalFound         int                 `json:"total_found"`
	TotalRelevant      int                 `json:"total_relevant"`
	AverageMatchScore  float64             `json:"average_match_score"`
	TopSkillsInDemand  []string            `json:"top_skills_in_demand"`
	SalaryInsights     string              `json:"salary_insights"`
	MarketObservations string              `json:"market_observations"`
	SearchParams       SummarySearchParams `json:"search_params"`
}

// SearchOutput is the SearchJobs stage result.
type SearchOutput struct {
	Jobs       []JobResult `json:"jobs"`
	TotalFound int         `json:"total_found"`
}

// RankedResults is the CombineAndRank stage result.
type RankedResults struct {
	Jobs    []JobResult          `json:"jobs"`
	Summary SearchResultsSummary `json:"summary"`
}

// SaveReceipt is the SaveResults stage result.
type SaveReceipt struct {
	RunID     uuid.UUID `json:"run_id"`
	SummaryID uuid.UUID `json:"summary_id"`
	JobCount  int       `json:"job_count"`
	SavedAt   time.Time `json:"saved_at"`
}

// SavedResults is what a client fetches once a run has completed.
type SavedResults struct {
	RunID   uuid.UUID            `json:"run_id"`
	UserID  uuid.UUID            `json:"user_id"`
	CVRef   string               `json:"cv_ref"`
	Summary SearchResultsSummary `json:"summary"`
	Jobs    []JobResult          `json:"jobs"`
	SavedAt time.Time            `json:"saved_at"`
}
