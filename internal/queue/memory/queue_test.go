package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		item, ok, err := q.Dequeue(context.Background(), "jobs", time.Second)
		if err != nil {
			errCh <- err
			return
		}
		if !ok {
			errCh <- errors.New("unexpected timeout")
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), "jobs", []byte("job-1")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if string(got) != "job-1" {
			t.Fatalf("expected job-1, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	item, ok, err := q.Dequeue(context.Background(), "jobs", 20*time.Millisecond)
	if err != nil || ok || item != nil {
		t.Fatalf("expected clean timeout, got item=%q ok=%v err=%v", item, ok, err)
	}
}

func TestQueueNamesAreIndependent(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	ctx := context.Background()
	if err := q.Enqueue(ctx, "status", []byte("event")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, ok, _ := q.Dequeue(ctx, "jobs", 10*time.Millisecond); ok {
		t.Fatal("expected jobs queue to be empty")
	}
	if got := q.Drain("status"); len(got) != 1 || string(got[0]) != "event" {
		t.Fatalf("expected drained status event, got %q", got)
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := q.Dequeue(ctx, "jobs", time.Second); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	if err := q.Enqueue(context.Background(), "jobs", []byte("primed")); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	if err := q.Enqueue(ctx, "jobs", []byte("overflow")); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, _, err := q.Dequeue(context.Background(), "jobs", time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
