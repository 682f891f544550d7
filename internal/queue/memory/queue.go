// Package memory provides queue implementations for local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQueueClosed is returned once Close has been called.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a set of bounded in-memory named queues with context-aware operations.
type Queue struct {
	capacity int
	mu       sync.Mutex
	queues   map[string]chan []byte
	closed   bool
}

// NewQueue constructs a new queue set; each named queue holds up to capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		queues:   make(map[string]chan []byte),
	}
}

func (q *Queue) channel(name string) (chan []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan []byte, q.capacity)
		q.queues[name] = ch
	}
	return ch, nil
}

// Enqueue appends payload to the named queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	ch, err := q.channel(queue)
	if err != nil {
		return err
	}
	item := append([]byte(nil), payload...)
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case ch <- item:
		return nil
	}
}

// Dequeue pops the next payload, waiting at most timeout.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	ch, err := q.channel(queue)
	if err != nil {
		return nil, false, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-timer.C:
		return nil, false, nil
	case item, ok := <-ch:
		if !ok {
			return nil, false, ErrQueueClosed
		}
		return item, true, nil
	}
}

// Drain returns and removes every payload currently buffered in queue.
func (q *Queue) Drain(queue string) [][]byte {
	ch, err := q.channel(queue)
	if err != nil {
		return nil
	}
	var out [][]byte
	for {
		select {
		case item := <-ch:
			out = append(out, item)
		default:
			return out
		}
	}
}

// Close closes every underlying channel for shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for _, ch := range q.queues {
		close(ch)
	}
	q.closed = true
}
