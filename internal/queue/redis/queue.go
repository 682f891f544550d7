package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Queue implements crawler.Queue with BLPOP and RPUSH.
type Queue struct {
	client goredis.Cmdable
	logger *zap.Logger
}

// NewQueue wraps an existing client.
func NewQueue(client goredis.Cmdable, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Dequeue pops the head of queue, blocking up to timeout. A timeout is
// reported as ok == false with a nil error.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	result, err := q.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, goredis.Nil) {
		q.logger.Debug("dequeue timed out", zap.String("queue", queue), zap.Duration("timeout", timeout))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blpop %s: %w", queue, err)
	}
	// BLPOP replies with [key, value].
	if len(result) != 2 {
		return nil, false, fmt.Errorf("blpop %s: unexpected reply length %d", queue, len(result))
	}
	q.logger.Debug("dequeued item", zap.String("queue", queue), zap.Int("bytes", len(result[1])))
	return []byte(result[1]), true, nil
}

// Enqueue appends payload to the tail of queue.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if err := q.client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", queue, err)
	}
	return nil
}

// Len reports the current length of queue.
func (q *Queue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", queue, err)
	}
	return n, nil
}
