package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jonathan/job-matcher/internal/config"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	objects  map[string]*storage.ObjectAttrs
	attrsErr error
	signed   []*storage.SignedURLOptions
}

func (f *fakeObjectStore) Attrs(_ context.Context, bucket, object string) (*storage.ObjectAttrs, error) {
	if f.attrsErr != nil {
		return nil, f.attrsErr
	}
	attrs, ok := f.objects[bucket+"/"+object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return attrs, nil
}

func (f *fakeObjectStore) SignedURL(bucket, object string, opts *storage.SignedURLOptions) (string, error) {
	f.signed = append(f.signed, opts)
	return "https://storage.googleapis.com/" + bucket + "/" + object + "?X-Goog-Signature=sig", nil
}

func (f *fakeObjectStore) Close() error { return nil }

func TestGCSResolver_ResolvesRefs(t *testing.T) {
	store := &fakeObjectStore{objects: map[string]*storage.ObjectAttrs{
		"cvs/u1/cv.pdf":   {ContentType: "application/pdf"},
		"other/resume.md": {},
	}}
	r := newGCSResolver(store, "cvs", time.Minute)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	tests := []struct {
		ref         string
		wantPrefix  string
		contentType string
	}{
		{"u1/cv.pdf", "https://storage.googleapis.com/cvs/u1/cv.pdf", "application/pdf"},
		{"gs://cvs/u1/cv.pdf", "https://storage.googleapis.com/cvs/u1/cv.pdf", "application/pdf"},
		{"gs://other/resume.md", "https://storage.googleapis.com/other/resume.md", "text/markdown"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.ResolveDownloadURL(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got.URL, tt.wantPrefix), got.URL)
			assert.Equal(t, tt.contentType, got.ContentType)
		})
	}

	require.NotEmpty(t, store.signed)
	opts := store.signed[0]
	assert.Equal(t, storage.SigningSchemeV4, opts.Scheme)
	assert.Equal(t, "GET", opts.Method)
	assert.Equal(t, fixed.Add(time.Minute), opts.Expires)
}

func TestGCSResolver_NotFound(t *testing.T) {
	r := newGCSResolver(&fakeObjectStore{objects: map[string]*storage.ObjectAttrs{}}, "cvs", time.Minute)

	for _, ref := range []string{"missing.pdf", "gs://cvs/missing.pdf", "gs://cvs", "gs:///x", ""} {
		_, err := r.ResolveDownloadURL(context.Background(), ref)
		require.Error(t, err, ref)
		assert.ErrorIs(t, err, types.ErrNotFound, ref)
	}
}

func TestGCSResolver_OtherErrorsAreNotNotFound(t *testing.T) {
	r := newGCSResolver(&fakeObjectStore{attrsErr: errors.New("permission denied")}, "cvs", time.Minute)

	_, err := r.ResolveDownloadURL(context.Background(), "cv.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

func TestGCSResolver_NoDefaultBucket(t *testing.T) {
	r := newGCSResolver(&fakeObjectStore{}, "", time.Minute)
	_, err := r.ResolveDownloadURL(context.Background(), "cv.pdf")
	assert.Error(t, err)
}

func TestLocalResolver(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "u1", "cv.pdf"), []byte("%PDF"), 0o600))

	r, err := NewLocalResolver(root)
	require.NoError(t, err)

	got, err := r.ResolveDownloadURL(context.Background(), "u1/cv.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.URL, "file://"))
	assert.True(t, strings.HasSuffix(got.URL, "/u1/cv.pdf"))
	assert.Equal(t, "application/pdf", got.ContentType)

	abs, err := r.ResolveDownloadURL(context.Background(), filepath.Join(root, "u1", "cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, got.URL, abs.URL)
}

func TestLocalResolver_NotFound(t *testing.T) {
	r, err := NewLocalResolver(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"missing.pdf", "../outside.pdf", "", "."} {
		_, err := r.ResolveDownloadURL(context.Background(), ref)
		require.Error(t, err, ref)
		assert.ErrorIs(t, err, types.ErrNotFound, ref)
	}
}

func TestNew_LocalBackend(t *testing.T) {
	r, closeFn, err := New(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalResolver{}, r)
	assert.NoError(t, closeFn())

	_, _, err = New(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}
