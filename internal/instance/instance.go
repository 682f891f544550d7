// Package instance resolves the identifier stamped on status events.
package instance

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"go.uber.org/zap"
)

const instanceIDPath = "instance-id"

type metadataAPI interface {
	GetMetadata(ctx context.Context, in *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// Options configures a Resolver.
type Options struct {
	// ID, when set, is returned without consulting metadata.
	ID string
	// FallbackID is used when metadata is unreachable.
	FallbackID string
	Timeout    time.Duration
	// Endpoint overrides the metadata service address.
	Endpoint string
}

// Resolver looks up the EC2 instance id.
type Resolver struct {
	client metadataAPI
	opts   Options
	logger *zap.Logger
}

// NewResolver builds a Resolver backed by the instance metadata service.
func NewResolver(opts Options, logger *zap.Logger) *Resolver {
	client := imds.New(imds.Options{
		Endpoint: opts.Endpoint,
		Retryer:  aws.NopRetryer{},
	})
	return newResolver(client, opts, logger)
}

func newResolver(client metadataAPI, opts Options, logger *zap.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, opts: opts, logger: logger}
}

// Resolve returns the configured id, the metadata instance id, or the
// fallback, in that order. It never fails.
func (r *Resolver) Resolve(ctx context.Context) string {
	if r.opts.ID != "" {
		return r.opts.ID
	}
	id, err := r.lookup(ctx)
	if err != nil {
		r.logger.Info("instance metadata unavailable, using fallback id",
			zap.String("fallback_id", r.opts.FallbackID),
			zap.Error(err),
		)
		return r.opts.FallbackID
	}
	return id
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	out, err := r.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: instanceIDPath})
	if err != nil {
		return "", fmt.Errorf("get instance-id: %w", err)
	}
	defer func() { _ = out.Content.Close() }()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("read instance-id: %w", err)
	}
	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", fmt.Errorf("empty instance-id")
	}
	return id, nil
}
