package listings

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/job-matcher/internal/types"
)

// RawPosting is a job posting as delivered by a source, before normalization.
type RawPosting struct {
	SourceID        string   `json:"id"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Description     string   `json:"description"`
	DescriptionHTML string   `json:"description_html"`
	URL             string   `json:"url"`
	PostedAt        string   `json:"posted_at"`
	Salary          *float64 `json:"salary"`
	Currency        string   `json:"currency"`
}

// NormalizeError reports a posting that cannot become a listing.
type NormalizeError struct {
	Source string
	Field  string
	Reason string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("posting from %s rejected: %s %s", e.Source, e.Field, e.Reason)
}

// postedLayouts are tried in order when parsing PostedAt.
var postedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Normalize turns a raw posting into a listing. A missing title or an unusable URL
// is a *NormalizeError; every other field is best effort.
func Normalize(sourceName string, raw RawPosting, now time.Time) (types.JobListing, error) {
	title := CleanText(raw.Title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return types.JobListing{}, &NormalizeError{Source: sourceName, Field: "title", Reason: "is empty"}
	}

	link := strings.TrimSpace(raw.URL)
	if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.JobListing{}, &NormalizeError{Source: sourceName, Field: "url", Reason: fmt.Sprintf("%q is not an absolute http(s) URL", raw.URL)}
	}

	description := CleanText(raw.Description)
	if description == "" && raw.DescriptionHTML != "" {
		text, err := HTMLToText(raw.DescriptionHTML)
		if err == nil {
			description = text
		}
	}

	listing := types.JobListing{
		ID:              ListingID(sourceName, raw.SourceID, link),
		Title:           title,
		Description:     description,
		DescriptionHTML: strings.TrimSpace(raw.DescriptionHTML),
		Company:         strings.TrimSpace(raw.Company),
		Location:        strings.Join(strings.Fields(raw.Location), " "),
		Currency:        strings.ToUpper(strings.TrimSpace(raw.Currency)),
		SourceName:      sourceName,
		SourceID:        strings.TrimSpace(raw.SourceID),
		SourceURL:       link,
		PostedAt:        parsePosted(raw.PostedAt),
		CreatedAt:       now.UTC(),
	}
	if raw.Salary != nil && *raw.Salary > 0 {
		salary := *raw.Salary
		listing.Salary = &salary
	}

	if err := listing.Validate(); err != nil {
		return types.JobListing{}, &NormalizeError{Source: sourceName, Field: "listing", Reason: err.Error()}
	}
	return listing, nil
}

func parsePosted(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range postedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
