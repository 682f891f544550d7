// Package redis implements the job and status queues on Redis lists.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBrokerUnavailable is returned when the broker cannot be reached within
// the connect retry budget.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Options configures the broker connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Retries  int
	Backoff  time.Duration
}

// Connect opens a client and pings it up to Retries times, sleeping Backoff
// between attempts.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*goredis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	redisOpts := &goredis.Options{Addr: opts.Addr, DB: opts.DB}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	client := goredis.NewClient(redisOpts)
	if err := waitForBroker(ctx, client, opts.Retries, opts.Backoff, logger); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close redis client after connect failure", zap.Error(closeErr))
		}
		return nil, err
	}
	return client, nil
}

type pinger interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

func waitForBroker(ctx context.Context, client pinger, retries int, backoff time.Duration, logger *zap.Logger) error {
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for redis",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retries),
			zap.Error(lastErr),
		)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrBrokerUnavailable, retries, lastErr)
}
