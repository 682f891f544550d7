// Package worker implements the claim-crawl-report loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/metrics"
)

// ErrBrokerFailures is returned when consecutive broker errors exhaust the budget.
var ErrBrokerFailures = errors.New("broker failure budget exhausted")

// Config controls Worker behavior.
type Config struct {
	JobsQueue      string
	LockName       string
	LockExpiry     time.Duration
	DequeueTimeout time.Duration
	// PollInterval paces claim attempts while the lock is contended.
	PollInterval time.Duration
	// ExitOnEmpty terminates the loop on the first dequeue timeout.
	ExitOnEmpty       bool
	MaxBrokerFailures int
}

// terminator is implemented by runners that can kill an in-flight crawl.
type terminator interface {
	Terminate() bool
}

// Worker claims one job at a time under the shared lock and executes it.
type Worker struct {
	queue    crawler.Queue
	locker   crawler.Locker
	executor *Executor
	runner   crawler.Runner
	limiter  *rate.Limiter
	cfg      Config
	logger   *zap.Logger

	state    atomic.Int32
	failures int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs a Worker. The executor's state hook is chained so State
// reflects crawl phases too.
func New(
	queue crawler.Queue,
	locker crawler.Locker,
	executor *Executor,
	runner crawler.Runner,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxBrokerFailures <= 0 {
		cfg.MaxBrokerFailures = 1
	}
	metrics.Init()
	w := &Worker{
		queue:    queue,
		locker:   locker,
		executor: executor,
		runner:   runner,
		limiter:  rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		cfg:      cfg,
		logger:   logger,
	}
	prev := executor.cfg.OnState
	executor.cfg.OnState = func(s State) {
		w.setState(s)
		if prev != nil {
			prev(s)
		}
	}
	return w
}

// State reports the loop's current phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Terminate stops the loop and kills the in-flight crawl, if any.
func (w *Worker) Terminate() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if t, ok := w.runner.(terminator); ok {
		t.Terminate()
	}
}

// Run blocks, processing jobs until ctx ends, Terminate is called, the queue
// runs dry with ExitOnEmpty set, or the broker failure budget is spent.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer w.setState(StateTerminated)

	w.logger.Info("worker started",
		zap.String("queue", w.cfg.JobsQueue),
		zap.String("lock", w.cfg.LockName),
		zap.Duration("dequeue_timeout", w.cfg.DequeueTimeout),
	)
	for {
		w.setState(StateIdle)
		if err := w.limiter.Wait(ctx); err != nil {
			return w.stopped(ctx)
		}
		done, err := w.cycle(ctx)
		if ctx.Err() != nil {
			return w.stopped(ctx)
		}
		if err != nil || done {
			return err
		}
	}
}

// cycle runs one claim attempt. done is true when the loop should terminate.
func (w *Worker) cycle(ctx context.Context) (done bool, err error) {
	w.setState(StateClaiming)
	token, ok, err := w.locker.Acquire(ctx, w.cfg.LockName, w.cfg.LockExpiry)
	if err != nil {
		metrics.ObserveLockAttempt("error")
		return w.brokerFailure(ctx, "acquire lock", err)
	}
	if !ok {
		metrics.ObserveLockAttempt("contended")
		return false, nil
	}
	metrics.ObserveLockAttempt("acquired")

	payload, got, err := w.queue.Dequeue(ctx, w.cfg.JobsQueue, w.cfg.DequeueTimeout)
	if err != nil {
		w.release(ctx, token)
		if ctx.Err() != nil {
			return true, nil
		}
		metrics.ObserveDequeue("error")
		return w.brokerFailure(ctx, "dequeue", err)
	}
	w.failures = 0
	if !got {
		w.release(ctx, token)
		metrics.ObserveDequeue("timeout")
		if w.cfg.ExitOnEmpty {
			w.logger.Info("job queue empty, terminating")
			return true, nil
		}
		w.logger.Debug("dequeue timed out")
		return false, nil
	}

	job, err := crawler.DecodeJob(payload)
	if err != nil {
		w.release(ctx, token)
		metrics.ObserveDequeue("malformed")
		w.logger.Warn("discarding malformed job", zap.Error(err), zap.ByteString("payload", payload))
		return false, nil
	}
	metrics.ObserveDequeue("job")

	job.ID = ""
	job, err = w.executor.Prepare(job)
	if err != nil {
		w.release(ctx, token)
		w.logger.Error("prepare job", zap.Error(err))
		return false, nil
	}

	if err := w.executor.Announce(ctx, job); err != nil {
		w.logger.Error("processing event not published", zap.String("crawl_id", job.ID), zap.Error(err))
	}
	w.release(ctx, token)

	if _, err := w.executor.Execute(ctx, job); err != nil && ctx.Err() == nil {
		w.logger.Warn("job completed with errors", zap.String("crawl_id", job.ID), zap.Error(err))
	}
	return false, nil
}

func (w *Worker) release(ctx context.Context, token string) {
	// Release even when ctx is already canceled.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	released, err := w.locker.Release(releaseCtx, w.cfg.LockName, token)
	switch {
	case err != nil:
		w.logger.Warn("lock release failed", zap.String("lock", w.cfg.LockName), zap.Error(err))
	case !released:
		w.logger.Warn("lock release skipped",
			zap.String("lock", w.cfg.LockName),
			zap.Error(crawler.ErrLockNotHeld),
		)
	}
}

func (w *Worker) brokerFailure(ctx context.Context, op string, err error) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	w.failures++
	w.logger.Error("broker error",
		zap.String("op", op),
		zap.Int("consecutive", w.failures),
		zap.Int("budget", w.cfg.MaxBrokerFailures),
		zap.Error(err),
	)
	if w.failures >= w.cfg.MaxBrokerFailures {
		return true, fmt.Errorf("%w: %s: %w", ErrBrokerFailures, op, err)
	}
	return false, nil
}

func (w *Worker) stopped(ctx context.Context) error {
	w.logger.Info("worker stopping", zap.NamedError("cause", context.Cause(ctx)))
	return nil
}
