package crawler

import (
	"context"
	"io"
	"time"
)

// Queue provides blocking dequeue and append semantics over named queues.
type Queue interface {
	// Dequeue blocks up to timeout. ok is false when nothing arrived in time.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (payload []byte, ok bool, err error)
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

// Locker is a mutual-exclusion primitive shared by worker instances.
type Locker interface {
	// Acquire returns a fresh ownership token when the lock was free.
	Acquire(ctx context.Context, name string, expiry time.Duration) (token string, ok bool, err error)
	// Release deletes the lock only when token still owns it.
	Release(ctx context.Context, name, token string) (bool, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// URI renders the location path would be stored at.
	URI(path string) string
}

// Publisher pushes status payloads to a named topic or queue.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Runner executes the external crawl process.
type Runner interface {
	Run(ctx context.Context, args []string) (CrawlResult, error)
}

// Hasher computes digests used to derive collections.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl IDs.
type IDGenerator interface {
	NewID() (string, error)
}
