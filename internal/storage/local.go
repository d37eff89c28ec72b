package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalResolver serves CV files from a directory as file:// URLs. Used by the CLI
// and in tests.
type LocalResolver struct {
	root string
}

// NewLocalResolver resolves references relative to root.
func NewLocalResolver(root string) (*LocalResolver, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid storage directory %q: %w", root, err)
	}
	return &LocalResolver{root: abs}, nil
}

// ResolveDownloadURL maps ref to a file under the root. Absolute paths and
// file:// URLs are accepted as long as they stay inside the root.
func (r *LocalResolver) ResolveDownloadURL(_ context.Context, ref string) (*FileURL, error) {
	path, err := r.pathFor(ref)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Ref: ref, Cause: err}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, &NotFoundError{Ref: ref, Cause: errors.New("reference is a directory")}
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return &FileURL{URL: u.String(), ContentType: contentTypeFor(path)}, nil
}

func (r *LocalResolver) pathFor(ref string) (string, error) {
	ref = strings.TrimSpace(strings.TrimPrefix(ref, "file://"))
	if ref == "" {
		return "", &NotFoundError{Ref: ref}
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &NotFoundError{Ref: ref, Cause: errors.New("reference escapes storage directory")}
	}
	return path, nil
}
