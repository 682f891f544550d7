// Package memory provides an in-process claim lock for tests and single-node runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/broadcrawl-worker/internal/clock/system"
	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/id/uuid"
)

type entry struct {
	token   string
	expires time.Time
}

// Locker is a map-backed crawler.Locker honoring expiry.
type Locker struct {
	mu    sync.Mutex
	locks map[string]entry
	clock crawler.Clock
	ids   *uuid.Generator
}

// NewLocker returns an empty Locker. A nil clock uses wall time.
func NewLocker(clock crawler.Clock) *Locker {
	if clock == nil {
		clock = system.New()
	}
	return &Locker{locks: make(map[string]entry), clock: clock, ids: uuid.New()}
}

// Acquire takes the lock when it is free or expired.
func (l *Locker) Acquire(_ context.Context, name string, expiry time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if cur, ok := l.locks[name]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token, err := l.ids.NewToken()
	if err != nil {
		return "", false, err
	}
	l.locks[name] = entry{token: token, expires: now.Add(expiry)}
	return token, true, nil
}

// Release removes the lock when token still owns it.
func (l *Locker) Release(_ context.Context, name, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.locks[name]
	if !ok || token == "" || cur.token != token || !l.clock.Now().Before(cur.expires) {
		return false, nil
	}
	delete(l.locks, name)
	return true, nil
}

// Held reports whether name is currently locked.
func (l *Locker) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[name]
	return ok && l.clock.Now().Before(cur.expires)
}
