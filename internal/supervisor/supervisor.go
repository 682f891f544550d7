// Package supervisor runs the external crawl executable and classifies its exit status.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
)

// Options configures a Supervisor.
type Options struct {
	Executable string
	// Timeout kills the child after this long. Zero means unbounded.
	Timeout time.Duration
	// Stdout and Stderr default to the worker's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Supervisor runs one crawl at a time and can terminate it on request.
type Supervisor struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	current *exec.Cmd
}

// New builds a Supervisor.
func New(opts Options, logger *zap.Logger) *Supervisor {
	if opts.Executable == "" {
		opts.Executable = "crawl"
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Classify maps an exit code onto the crawl outcome contract.
func Classify(code int) crawler.Outcome {
	switch code {
	case crawler.ExitSuccess:
		return crawler.OutcomeSuccess
	case crawler.ExitArtifactsReady:
		return crawler.OutcomeArtifactsReady
	default:
		return crawler.OutcomeFailure
	}
}

// Run starts the executable with args and blocks until it exits. A non-zero
// exit is reported through the result, not the error; err is set only when
// the process could not be started or waited on.
func (s *Supervisor) Run(ctx context.Context, args []string) (crawler.CrawlResult, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}
	defer cancel()

	// #nosec G204 -- the executable is operator configured; args are passed without a shell.
	cmd := exec.CommandContext(runCtx, s.opts.Executable, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return crawler.CrawlResult{ExitCode: -1, Outcome: crawler.OutcomeFailure}, fmt.Errorf("start %s: %w", s.opts.Executable, err)
	}
	s.setCurrent(cmd)
	defer s.setCurrent(nil)

	s.logger.Debug("crawl started", zap.Int("pid", cmd.Process.Pid))
	waitErr := cmd.Wait()

	result := crawler.CrawlResult{Duration: time.Since(start)}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Signaled = result.ExitCode == -1
	default:
		return crawler.CrawlResult{ExitCode: -1, Outcome: crawler.OutcomeFailure, Duration: result.Duration},
			fmt.Errorf("wait %s: %w", s.opts.Executable, waitErr)
	}
	result.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	if result.Signaled || result.TimedOut {
		result.Outcome = crawler.OutcomeFailure
	} else {
		result.Outcome = Classify(result.ExitCode)
	}
	return result, nil
}

// Running reports whether a crawl is in flight.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Terminate kills the in-flight crawl, if any. It reports whether a process
// was signaled.
func (s *Supervisor) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Process == nil {
		return false
	}
	if err := s.current.Process.Kill(); err != nil {
		s.logger.Warn("kill crawl", zap.Error(err))
		return false
	}
	s.logger.Info("crawl terminated", zap.Int("pid", s.current.Process.Pid))
	return true
}

func (s *Supervisor) setCurrent(cmd *exec.Cmd) {
	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()
}
