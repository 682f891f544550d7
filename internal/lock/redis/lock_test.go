package redis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/config"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, nil, zap.NewNop()), srv
}

func TestLocker_SecondAcquireFailsWhileHeld(t *testing.T) {
	t.Parallel()

	l, srv := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "claim", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	stored, err := srv.Get("lock:claim")
	require.NoError(t, err)
	require.Equal(t, token, stored)
	require.Greater(t, srv.TTL("lock:claim"), time.Duration(0))

	second, ok, err := l.Acquire(ctx, "claim", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, second)
}

func TestLocker_DefaultExpiryCoversDequeueWindow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  provider: local\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	l, srv := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, cfg.Lock.Name, cfg.Lock.Expiry)
	require.NoError(t, err)
	require.True(t, ok)

	// A full dequeue wait elapses while the claim is held.
	srv.FastForward(cfg.Queue.DequeueTimeout)

	_, ok, err = l.Acquire(ctx, cfg.Lock.Name, cfg.Lock.Expiry)
	require.NoError(t, err)
	require.False(t, ok, "second worker must not claim during the dequeue window")

	released, err := l.Release(ctx, cfg.Lock.Name, token)
	require.NoError(t, err)
	require.True(t, released)
}

func TestLocker_ReleaseWithOwnerToken(t *testing.T) {
	t.Parallel()

	l, srv := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "claim", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := l.Release(ctx, "claim", token)
	require.NoError(t, err)
	require.True(t, released)
	require.False(t, srv.Exists("lock:claim"))

	_, ok, err = l.Acquire(ctx, "claim", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocker_ReleaseMismatchedTokenKeepsKey(t *testing.T) {
	t.Parallel()

	l, srv := newTestLocker(t)
	ctx := context.Background()

	stale, ok, err := l.Acquire(ctx, "claim", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Expiry hands the lock to another holder.
	srv.FastForward(2 * time.Second)
	current, ok, err := l.Acquire(ctx, "claim", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, stale, current)

	released, err := l.Release(ctx, "claim", stale)
	require.NoError(t, err)
	require.False(t, released)

	stored, err := srv.Get("lock:claim")
	require.NoError(t, err)
	require.Equal(t, current, stored)

	released, err = l.Release(ctx, "claim", "")
	require.NoError(t, err)
	require.False(t, released)
	require.True(t, srv.Exists("lock:claim"))
}

func TestLocker_ReleaseMissingKey(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocker(t)
	released, err := l.Release(context.Background(), "never-held", "token")
	require.NoError(t, err)
	require.False(t, released)
}

type failingTokens struct{}

func (failingTokens) NewToken() (string, error) { return "", errors.New("entropy exhausted") }

func TestLocker_TokenErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewLocker(client, failingTokens{}, zap.NewNop())
	_, ok, err := l.Acquire(context.Background(), "claim", time.Minute)
	require.Error(t, err)
	require.False(t, ok)
	require.False(t, srv.Exists("lock:claim"))
}

func TestKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, "lock:claim", Key("claim"))
}
