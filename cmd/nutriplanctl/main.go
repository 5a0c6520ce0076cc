package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/logging"
)

var (
	// Global flags
	logLevel string
	timeout  time.Duration

	logger *zap.Logger
)

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nutriplanctl",
		Short: "Operator tools for the NutriPlan backend",
		Long: `nutriplanctl loads the Child Nutrition dataset and runs ad-hoc
searches through the same aggregator the server uses.

Configuration is read the same way as the server: config.yaml, .env and
NUTRIPLAN_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(logLevel, "console")
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	root.AddCommand(newImportCNCmd())
	root.AddCommand(newSearchCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext applies the global timeout to the command's context
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
