package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// objectStore is the part of the GCS client the resolver needs.
type objectStore interface {
	Attrs(ctx context.Context, bucket, object string) (*storage.ObjectAttrs, error)
	SignedURL(bucket, object string, opts *storage.SignedURLOptions) (string, error)
	Close() error
}

type gcsClient struct {
	client *storage.Client
}

func (c gcsClient) Attrs(ctx context.Context, bucket, object string) (*storage.ObjectAttrs, error) {
	return c.client.Bucket(bucket).Object(object).Attrs(ctx)
}

func (c gcsClient) SignedURL(bucket, object string, opts *storage.SignedURLOptions) (string, error) {
	return c.client.Bucket(bucket).SignedURL(object, opts)
}

func (c gcsClient) Close() error {
	return c.client.Close()
}

// GCSResolver returns V4 signed GET URLs for objects in Cloud Storage.
type GCSResolver struct {
	store         objectStore
	defaultBucket string
	ttl           time.Duration
	now           func() time.Time
}

// NewGCSResolver creates a resolver using Application Default Credentials.
// Bare object names resolve against defaultBucket.
func NewGCSResolver(ctx context.Context, defaultBucket string, ttl time.Duration) (*GCSResolver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return newGCSResolver(gcsClient{client: client}, defaultBucket, ttl), nil
}

func newGCSResolver(store objectStore, defaultBucket string, ttl time.Duration) *GCSResolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &GCSResolver{store: store, defaultBucket: defaultBucket, ttl: ttl, now: time.Now}
}

// ResolveDownloadURL checks that the object exists and signs a GET URL for it.
func (r *GCSResolver) ResolveDownloadURL(ctx context.Context, ref string) (*FileURL, error) {
	bucket, object, err := r.parseRef(ref)
	if err != nil {
		return nil, err
	}

	attrs, err := r.store.Attrs(ctx, bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, &NotFoundError{Ref: ref, Cause: err}
		}
		return nil, fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, object, err)
	}

	signed, err := r.store.SignedURL(bucket, object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: r.now().Add(r.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign URL for gs://%s/%s: %w", bucket, object, err)
	}

	contentType := attrs.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(object)
	}
	return &FileURL{URL: signed, ContentType: contentType}, nil
}

// Close releases the storage client.
func (r *GCSResolver) Close() error {
	return r.store.Close()
}

// parseRef accepts gs://bucket/object or a bare object name.
func (r *GCSResolver) parseRef(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", &NotFoundError{Ref: ref}
	}
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket == "" || object == "" {
			return "", "", &NotFoundError{Ref: ref, Cause: errors.New("malformed gs:// reference")}
		}
		return bucket, object, nil
	}
	if r.defaultBucket == "" {
		return "", "", fmt.Errorf("reference %q has no bucket and no default bucket is configured", ref)
	}
	return r.defaultBucket, strings.TrimPrefix(ref, "/"), nil
}
