// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// errAborted cancels an in-flight upload whose source failed.
var errAborted = errors.New("upload aborted")

// Config selects the artifact bucket.
type Config struct {
	Bucket string
	// ChunkSize overrides the resumable upload chunk size. Zero keeps the
	// client default; objects smaller than a chunk go up in one request.
	ChunkSize int
}

// BlobStore uploads artifacts as objects in one bucket.
type BlobStore struct {
	client *storage.Client
	cfg    Config
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, cfg: cfg}, nil
}

// URI returns the gs:// location of path.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, path)
}

// PutObject streams data into the object at path. If reading data fails the
// upload is canceled before the writer closes, so no truncated object is
// committed.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	uploadCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	w := s.client.Bucket(s.cfg.Bucket).Object(path).NewWriter(uploadCtx)
	w.ContentType = contentType
	if s.cfg.ChunkSize > 0 {
		w.ChunkSize = s.cfg.ChunkSize
	}

	if _, err := io.Copy(w, data); err != nil {
		cancel(errAborted)
		// Close only reports the cancellation here; the object is not written.
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", path, err)
	}
	return s.URI(path), nil
}
