// Package cmd defines the CLI commands for the broadcrawl-worker executable.
//
// Architecture overview:
//   - worker: claims jobs from the Redis job queue under a shared lock, runs the
//     external crawl executable for each one, uploads the collection artifacts and
//     publishes PROCESSING/SUCCESS/FAILURE status events. Prometheus metrics are
//     served on metrics.addr.
//   - serve: accepts POST /crawl requests and runs each job through the same
//     executor, one at a time.
//
// Configuration is read by Viper from --config and CRAWLER_* environment
// variables; zap is installed as the global logger before any command runs.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/app"
	"github.com/JakeFAU/broadcrawl-worker/internal/config"
	"github.com/JakeFAU/broadcrawl-worker/internal/logging"
)

const serviceName = "broadcrawl-worker"

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what the root command hands its subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, mode app.Mode, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, mode, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Runs broad crawl jobs pulled from a Redis queue or an HTTP request.",
		Long: `broadcrawl-worker supervises the external crawl executable. Each worker
claims one job at a time, reports its progress as status events and ships
the resulting WARC files and logs to object storage.`,
		SilenceUsage: true,

		// Config and logging are ready before any subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, zap.String("service", serviceName))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and CRAWLER_* env vars apply when empty)")

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
