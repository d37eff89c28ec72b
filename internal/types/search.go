package types

// SearchParameters is the keyword set derived from a CVProfile by the TuneSearch stage.
type SearchParameters struct {
	PrimaryKeywords   []string `json:"primary_keywords" validate:"required"`
	SecondaryKeywords []string `json:"secondary_keywords" validate:"required"`
	SearchTerms       []string `json:"search_terms" validate:"required"`
	JobTitleKeywords  []string `json:"job_title_keywords" validate:"required"`
	TechnicalSkills   []string `json:"technical_skills" validate:"required"`
}

// Validate checks that every keyword array is present.
func (p *SearchParameters) Validate() error {
	return validate.Struct(p)
}

// IsEmpty reports whether no keyword of any kind was derived.
func (p *SearchParameters) IsEmpty() bool {
	return len(p.PrimaryKeywords) == 0 && len(p.SecondaryKeywords) == 0 &&
		len(p.SearchTerms) == 0 && len(p.JobTitleKeywords) == 0 && len(p.TechnicalSkills) == 0
}
