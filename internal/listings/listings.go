// Package listings holds the job listing store abstraction used by the SearchJobs
// stage, normalization of raw postings, and the ingestion path that fills a store
// from job sources.
package listings

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
)

// Field is a full-text searchable listing field.
type Field string

// Searchable fields.
const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
)

// Store is the read side of the job listing store. Implementations return hits in a
// stable order so that discovery order is reproducible.
type Store interface {
	// FullTextSearch returns listings whose field matches term.
	FullTextSearch(ctx context.Context, field Field, term string, limit int) ([]types.JobListing, error)
	// SubstringFilter returns listings whose title, description, source or location
	// contains any of terms, case-insensitively.
	SubstringFilter(ctx context.Context, terms []string, limit int) ([]types.JobListing, error)
	// GetByID returns the listing or an error wrapping types.ErrNotFound.
	GetByID(ctx context.Context, id string) (*types.JobListing, error)
}

// Writer is the ingestion side of the store.
type Writer interface {
	// UpsertListings inserts or replaces listings by ID and returns how many were written.
	UpsertListings(ctx context.Context, listings []types.JobListing) (int, error)
}

// listingNamespace scopes listing IDs derived from source identity.
var listingNamespace = uuid.MustParse("8f0b7c1e-4c57-4d7e-9a55-3f4c2b1d6e90")

// ListingID derives a stable ID from the source and its own posting identifier,
// falling back to the posting URL when the source has none.
func ListingID(sourceName, sourceID, url string) string {
	key := strings.ToLower(strings.TrimSpace(sourceName)) + "\x00"
	if sourceID != "" {
		key += sourceID
	} else {
		key += strings.TrimSpace(url)
	}
	return uuid.NewSHA1(listingNamespace, []byte(key)).String()
}
