// Package gcs archives fetched gazette pages in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config selects the destination bucket. Prefix is prepended to every object
// name.
type Config struct {
	Bucket       string
	Prefix       string
	CacheControl string
}

// BlobStore implements gazette.BlobStore on a GCS bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	cfg    Config
}

// New creates a BlobStore. The caller owns client and closes it.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{bucket: client.Bucket(cfg.Bucket), cfg: cfg}, nil
}

// PutObject uploads one page in a single request and returns its gs:// URI.
// Existing objects are overwritten so a rerun replaces the day's copy.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return "", errors.New("object name is required")
	}
	if s.cfg.Prefix != "" {
		name = path.Join(s.cfg.Prefix, name)
	}

	w := s.bucket.Object(name).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = contentType
	w.CacheControl = s.cfg.CacheControl
	w.Metadata = map[string]string{"archived-by": "gazette-watch"}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", s.cfg.Bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", s.cfg.Bucket, name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name), nil
}
