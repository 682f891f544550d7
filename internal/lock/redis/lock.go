// Package redis implements the claim lock on Redis keys.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/id/uuid"
)

// KeyPrefix is prepended to every lock name.
const KeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TokenSource produces ownership tokens.
type TokenSource interface {
	NewToken() (string, error)
}

// Locker implements crawler.Locker with SET NX PX and a compare-and-delete script.
type Locker struct {
	client lockClient
	tokens TokenSource
	logger *zap.Logger
}

// lockClient is the subset of the go-redis client the lock relies on.
type lockClient interface {
	goredis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
}

// NewLocker wraps an existing client. A nil token source uses random UUIDs.
func NewLocker(client lockClient, tokens TokenSource, logger *zap.Logger) *Locker {
	if tokens == nil {
		tokens = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{client: client, tokens: tokens, logger: logger}
}

// Key returns the Redis key guarding name.
func Key(name string) string {
	return KeyPrefix + name
}

// Acquire attempts a single create-if-absent with expiry. It never retries.
func (l *Locker) Acquire(ctx context.Context, name string, expiry time.Duration) (string, bool, error) {
	token, err := l.tokens.NewToken()
	if err != nil {
		return "", false, fmt.Errorf("lock token: %w", err)
	}
	ok, err := l.client.SetNX(ctx, Key(name), token, expiry).Result()
	if err != nil {
		return "", false, fmt.Errorf("setnx %s: %w", Key(name), err)
	}
	if !ok {
		return "", false, nil
	}
	l.logger.Debug("lock acquired", zap.String("lock", name), zap.Duration("expiry", expiry))
	return token, true, nil
}

// Release deletes the lock if token still owns it. A mismatched or empty
// token leaves the key in place and reports false.
func (l *Locker) Release(ctx context.Context, name, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := releaseScript.Run(ctx, l.client, []string{Key(name)}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", Key(name), err)
	}
	if deleted == 0 {
		l.logger.Warn("lock not released: token no longer owns it", zap.String("lock", name))
		return false, nil
	}
	return true, nil
}
