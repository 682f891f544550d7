package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/app"
	"github.com/JakeFAU/broadcrawl-worker/internal/metrics"
)

// newWorkerCmd creates the 'worker' subcommand running the queue loop.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Claims and runs crawl jobs from the job queue",
		Long: `Blocks on the configured job queue, claiming one job at a time under
the shared lock. Exits on SIGINT, SIGTERM or SIGTSTP, killing any in-flight
crawl, or when the queue runs dry with queue.exit_on_empty set.`,
		RunE: runWorkerCommand,
	}
}

func runWorkerCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	logger := rt.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP)
	defer stop()

	a, err := newApp(ctx, rt.cfg, app.ModeWorker, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	w, err := a.NewWorker()
	if err != nil {
		return err
	}

	metricsSrv := startMetricsServer(rt.cfg.Metrics.Addr, logger)
	defer shutdownServer(metricsSrv, 5*time.Second, logger)

	go func() {
		<-ctx.Done()
		w.Terminate()
	}()

	logger.Info("worker started", zap.String("instance_id", a.InstanceID()))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}

// startMetricsServer serves /metrics on addr. An empty addr disables it.
func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, timeout time.Duration, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
	}
}
