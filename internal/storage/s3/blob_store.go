// Package s3 provides a BlobStore backed by Amazon S3 or an S3-compatible endpoint.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// Retries is the number of PutObject attempts per object.
	Retries int
	// Timeout bounds each attempt.
	Timeout time.Duration
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore uploads artifacts with bounded, backed-off retries.
type BlobStore struct {
	client putObjectAPI
	cfg    Config
	logger *zap.Logger
}

// New loads the default AWS credential chain and builds an S3 client. A
// non-empty Endpoint switches to path-style addressing for S3-compatible stores.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client putObjectAPI, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{client: client, cfg: cfg, logger: logger}, nil
}

// URI returns the s3:// location of path without uploading anything.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, path)
}

// PutObject uploads data to key path and returns its s3:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	body, size, err := rewindable(data)
	if err != nil {
		return "", err
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewind body: %w", err)
		}
		lastErr = s.putObject(ctx, path, contentType, body, size)
		if lastErr == nil {
			return s.URI(path), nil
		}
		s.logger.Warn("s3 put failed",
			zap.String("key", path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == s.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, path, lastErr)
}

func (s *BlobStore) putObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(attemptCtx, in)
	return err
}

// rewindable returns a seekable body and its length, buffering readers that
// cannot seek.
func rewindable(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("measure body: %w", err)
		}
		return rs, size, nil
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return bytes.NewReader(buf), int64(len(buf)), nil
}
