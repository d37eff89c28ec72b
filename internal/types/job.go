package types

import "time"

// JobListing is a normalized posting held by the job listing store.
type JobListing struct {
	ID              string     `json:"id"`
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description"`
	DescriptionHTML string     `json:"description_html,omitempty"`
	Company         string     `json:"company,omitempty"`
	Location        string     `json:"location,omitempty"`
	Salary          *float64   `json:"salary,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	SourceName      string     `json:"source_name"`
	SourceID        string     `json:"source_id,omitempty"`
	SourceURL       string     `json:"source_url" validate:"required,url"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Validate checks the mandatory listing fields.
func (l *JobListing) Validate() error {
	return validate.Struct(l)
}

// ExperienceMatchLevel classifies how well a candidate's experience fits a job.
type ExperienceMatchLevel string

// Experience match levels.
const (
	ExperienceExcellentMatch ExperienceMatchLevel = "excellent_match"
	ExperienceGoodMatch      ExperienceMatchLevel = "good_match"
	ExperiencePartialMatch   ExperienceMatchLevel = "partial_match"
	ExperienceMismatch       ExperienceMatchLevel = "mismatch"
)

// LocationMatchLevel classifies a listing location against the candidate preferences.
type LocationMatchLevel string

// Location match levels.
const (
	LocationMatch       LocationMatchLevel = "location_match"
	LocationRemote      LocationMatchLevel = "remote_match"
	LocationMismatch    LocationMatchLevel = "location_mismatch"
	LocationUnknown     LocationMatchLevel = "location_unknown"
	LocationNotProvided LocationMatchLevel = "no_location_provided"
)

// Recommendation is the final tier assigned to a job from its match score.
type Recommendation string

// Recommendation tiers.
const (
	HighlyRecommended Recommendation = "highly_recommended"
	Recommended       Recommendation = "recommended"
	Consider          Recommendation = "consider"
	NotRecommended    Recommendation = "not_recommended"
)

// RecommendationFor maps a match score to its tier.
func RecommendationFor(score float64) Recommendation {
	switch {
	case score >= 0.8:
		return HighlyRecommended
	case score >= 0.6:
		return Recommended
	case score >= 0.4:
		return Consider
	default:
		return NotRecommended
	}
}

// ExperienceMatch is the model's classification of experience fit.
type ExperienceMatch struct {
	Level   ExperienceMatchLevel `json:"level" validate:"required,oneof=excellent_match good_match partial_match mismatch"`
	Score   float64              `json:"score" validate:"gte=0,lte=1"`
	Reasons []string             `json:"reasons"`
	Gaps    []string             `json:"gaps"`
}

// Validate checks the level enumeration and score bounds.
func (m *ExperienceMatch) Validate() error {
	return validate.Struct(m)
}

// LocationMatchResult is the substring-based location classification.
type LocationMatchResult struct {
	Level   LocationMatchLevel `json:"level"`
	Score   float64            `json:"score"`
	Reasons []string           `json:"reasons"`
}

// JobDetails holds facts extracted verbatim from a listing. Nil fields were not stated.
type JobDetails struct {
	SalaryMin *float64 `json:"salary_min"`
	SalaryMax *float64 `json:"salary_max"`
	Currency  *string  `json:"currency"`
	Company   *string  `json:"company"`
	JobType   *string  `json:"job_type"`
}

// JobResult is one annotated job within a workflow run.
type JobResult struct {
	JobID           string              `json:"job_id"`
	Title           string              `json:"title"`
	Company         string              `json:"company,omitempty"`
	Location        string              `json:"location,omitempty"`
	SourceName      string              `json:"source_name,omitempty"`
	SourceURL       string              `json:"source_url"`
	MatchedSkills   []string            `json:"matched_skills"`
	MissingSkills   []string            `json:"missing_skills"`
	ExperienceMatch ExperienceMatch     `json:"experience_match"`
	LocationMatch   LocationMatchResult `json:"location_match"`
	WorkTypeMatch   bool                `json:"work_type_match"`
	Recommendation  Recommendation      `json:"recommendation,omitempty"`
	MatchReasons    []string            `json:"match_reasons,omitempty"`
	Concerns        []string            `json:"concerns,omitempty"`
	Benefits        []string            `json:"benefits"`
	Requirements    []string            `json:"requirements"`
	Details         *JobDetails         `json:"details,omitempty"`
	MatchScore      float64             `json:"match_score"`
	Rank            int                 `json:"rank,omitempty"`
}
