package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// SourceQuery narrows what a source returns. Sources may ignore fields they cannot
// filter on.
type SourceQuery struct {
	Keywords []string
	Location string
	Limit    int
}

// Source delivers raw postings from one job board or feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q SourceQuery) ([]RawPosting, error)
}

// FileSource reads postings from a local JSON file. The file holds either an array
// of postings or an object with a "jobs" array.
type FileSource struct {
	name string
	path string
}

// NewFileSource creates a source named name reading path.
func NewFileSource(name, path string) *FileSource {
	return &FileSource{name: name, path: path}
}

// Name returns the source name stored on every listing.
func (s *FileSource) Name() string { return s.name }

// Fetch reads the file. Limit is honored; other query fields are ignored.
func (s *FileSource) Fetch(_ context.Context, q SourceQuery) ([]RawPosting, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	postings, err := decodePostings(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	if q.Limit > 0 && len(postings) > q.Limit {
		postings = postings[:q.Limit]
	}
	return postings, nil
}

// decodePostings accepts a bare array or {"jobs": [...]}.
func decodePostings(data []byte) ([]RawPosting, error) {
	var postings []RawPosting
	if err := json.Unmarshal(data, &postings); err == nil {
		return postings, nil
	}
	var envelope struct {
		Jobs []RawPosting `json:"jobs"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return envelope.Jobs, nil
}
