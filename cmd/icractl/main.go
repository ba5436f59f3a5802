// Command icractl runs flood-risk evaluations from the command line.
//
// Usage:
//
//	icractl batch [--date 2025-06-10] [--publish]
//	icractl point p3 [--date 2025-06-10]
//	icractl bundle validate [--dir models/icra] [--version v1]
//
// Settings come from the same environment variables as the API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/config"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "icractl",
		Short:        "Evaluate flood risk (ICRA) for monitored points",
		SilenceUsage: true,
	}
	root.AddCommand(newBatchCmd(), newPointCmd(), newBundleCmd())
	return root
}

// env is the configuration, logger, and metrics shared by subcommands.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  observability.NewStderrLogger(cfg),
		metrics: observability.NewMetrics(),
	}, nil
}

// parseDateFlag returns today for an empty flag.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return domain.Today(), nil
	}
	return domain.ParseDate(s)
}
