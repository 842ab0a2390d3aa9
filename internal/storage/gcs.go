package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tokbox/tokbox/internal/config"
)

// GCSStore implements Store on a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: "https://storage.googleapis.com/" + cfg.Bucket,
	}, nil
}

// PresignPut returns a V4 signed PUT URL.
func (s *GCSStore) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return s.sign(key, http.MethodPut, contentType, ttl)
}

// ReadURL returns a V4 signed GET URL, so private buckets can be read back.
func (s *GCSStore) ReadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return s.sign(key, http.MethodGet, "", ttl)
}

func (s *GCSStore) sign(key, method, contentType string, ttl time.Duration) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      method,
		ContentType: contentType,
		Expires:     time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign %s url: %w", method, err)
	}
	return u, nil
}

// Put writes an object.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}
	return nil
}

// PublicURL returns the storage.googleapis.com URL for key.
func (s *GCSStore) PublicURL(key string) string {
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
