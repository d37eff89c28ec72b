// Package storage resolves CV file references to URLs the completion client can
// download.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/types"
)

// FileURL is a resolved, time-limited download location.
type FileURL struct {
	URL         string
	ContentType string
}

// Resolver maps an opaque CV reference to a download URL. A reference that does
// not name an existing file yields an error wrapping types.ErrNotFound.
type Resolver interface {
	ResolveDownloadURL(ctx context.Context, ref string) (*FileURL, error)
}

// NotFoundError reports a reference that does not resolve to a file.
type NotFoundError struct {
	Ref   string
	Cause error
}

func (e *NotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("file %q not found: %v", e.Ref, e.Cause)
	}
	return fmt.Sprintf("file %q not found", e.Ref)
}

// Is matches types.ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == types.ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// New builds the resolver selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Resolver, func() error, error) {
	switch cfg.Backend {
	case "local":
		r, err := NewLocalResolver(cfg.LocalDir)
		return r, func() error { return nil }, err
	case "gcs", "":
		r, err := NewGCSResolver(ctx, cfg.Bucket, cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// contentTypeFor guesses a MIME type from the object name when the backend has none.
func contentTypeFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(lower, ".txt"):
		return "text/plain"
	case strings.HasSuffix(lower, ".md"):
		return "text/markdown"
	default:
		return "application/pdf"
	}
}
