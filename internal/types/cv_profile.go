// Package types provides the data types exchanged between pipeline stages, the workflow
// orchestrator, the progress tracker and the HTTP API.
package types

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ExperienceLevel is the seniority band extracted from a CV.
type ExperienceLevel string

// Experience levels accepted in a CVProfile.
const (
	ExperienceEntry     ExperienceLevel = "entry"
	ExperienceMid       ExperienceLevel = "mid"
	ExperienceSenior    ExperienceLevel = "senior"
	ExperienceExecutive ExperienceLevel = "executive"
)

// validate is shared by all Validate methods; validator caches struct metadata.
var validate = validator.New()

// CVProfile is the structured extraction of a candidate CV.
// Every list field must contain at least one non-empty entry.
type CVProfile struct {
	Skills             []string        `json:"skills" validate:"required,min=1,dive,required"`
	ExperienceLevel    ExperienceLevel `json:"experience_level" validate:"required,oneof=entry mid senior executive"`
	JobTitles          []string        `json:"job_titles" validate:"required,min=1,dive,required"`
	Industries         []string        `json:"industries" validate:"required,min=1,dive,required"`
	Keywords           []string        `json:"keywords" validate:"required,min=1,dive,required"`
	Education          string          `json:"education"`
	YearsOfExperience  float64         `json:"years_of_experience" validate:"gte=0"`
	PreferredLocations []string        `json:"preferred_locations" validate:"required,min=1,dive,required"`
}

// Validate checks the profile invariants.
func (p *CVProfile) Validate() error {
	return validate.Struct(p)
}

// Vocabulary returns the lower-cased tokens present anywhere in the profile.
// Used to check that derived search keywords stay grounded in the CV.
func (p *CVProfile) Vocabulary() map[string]struct{} {
	vocab := make(map[string]struct{})
	add := func(values ...string) {
		for _, v := range values {
			for _, tok := range Tokenize(v) {
				vocab[tok] = struct{}{}
			}
		}
	}
	add(p.Skills...)
	add(p.JobTitles...)
	add(p.Industries...)
	add(p.Keywords...)
	add(p.PreferredLocations...)
	add(p.Education, string(p.ExperienceLevel))
	return vocab
}

// Tokenize lower-cases s and splits it on anything that is not a letter, digit,
// '+' or '#', so "C++" and "C#" survive as tokens. Letters and digits of any
// script count; Unicode punctuation such as dashes, curly quotes and bullets splits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#')
	})
}
