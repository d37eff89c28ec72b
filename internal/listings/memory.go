package listings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/job-matcher/internal/types"
)

// MemoryStore is an in-process Store and Writer. Full-text matching requires every
// token of the term to appear among the field's tokens. Results keep insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	listings map[string]types.JobListing
}

// NewMemoryStore returns a store seeded with listings.
func NewMemoryStore(listings ...types.JobListing) *MemoryStore {
	s := &MemoryStore{listings: make(map[string]types.JobListing)}
	_, _ = s.UpsertListings(context.Background(), listings)
	return s
}

// UpsertListings inserts or replaces listings by ID.
func (s *MemoryStore) UpsertListings(_ context.Context, listings []types.JobListing) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range listings {
		if l.ID == "" {
			return 0, fmt.Errorf("listing %q has no ID", l.Title)
		}
		if _, exists := s.listings[l.ID]; !exists {
			s.order = append(s.order, l.ID)
		}
		s.listings[l.ID] = l
	}
	return len(listings), nil
}

// FullTextSearch matches term against title or description tokens.
func (s *MemoryStore) FullTextSearch(_ context.Context, field Field, term string, limit int) ([]types.JobListing, error) {
	want := types.Tokenize(term)
	if len(want) == 0 {
		return nil, nil
	}

	return s.filter(limit, func(l types.JobListing) bool {
		var text string
		switch field {
		case FieldTitle:
			text = l.Title
		case FieldDescription:
			text = l.Description
		default:
			return false
		}
		have := make(map[string]struct{})
		for _, tok := range types.Tokenize(text) {
			have[tok] = struct{}{}
		}
		for _, tok := range want {
			if _, ok := have[tok]; !ok {
				return false
			}
		}
		return true
	}), nil
}

// SubstringFilter matches any term against title, description, source and location.
func (s *MemoryStore) SubstringFilter(_ context.Context, terms []string, limit int) ([]types.JobListing, error) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	return s.filter(limit, func(l types.JobListing) bool {
		haystack := strings.ToLower(strings.Join([]string{l.Title, l.Description, l.SourceName, l.Location}, "\n"))
		for _, t := range lowered {
			if strings.Contains(haystack, t) {
				return true
			}
		}
		return false
	}), nil
}

// GetByID returns the listing with id.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*types.JobListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, types.ErrNotFound)
	}
	return &l, nil
}

func (s *MemoryStore) filter(limit int, match func(types.JobListing) bool) []types.JobListing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.JobListing
	for _, id := range s.order {
		l := s.listings[id]
		if !match(l) {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
