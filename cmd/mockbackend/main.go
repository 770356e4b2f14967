// mockbackend serves an offline stand-in for the load-testing backend so the
// dashboard can be demoed and developed without the real engine.
//
// Usage: mockbackend --addr :3001 --tick 1s
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/loadtest-dash/internal/config"
	"github.com/rickgao/loadtest-dash/internal/logging"
	"github.com/rickgao/loadtest-dash/internal/mock"
	"github.com/rickgao/loadtest-dash/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := mock.DefaultConfig()
	logCfg := config.LoggingConfig{Level: config.DefaultLogLevel, Format: "text"}

	cmd := &cobra.Command{
		Use:   "mockbackend",
		Short: "mockbackend - offline load-testing backend",
		Long: `mockbackend answers the backend REST API (/api/health, /api/load-test,
/api/stress-test, /api/api-test) and the /ws feed with generated data.

Each started run streams one time_series and one test_update frame per tick and
finishes with a completed update. get_time_series returns the recent samples and
"ping" is answered with "pong".`,
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, logCfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "interval between simulated samples")
	f.IntVar(&cfg.HistorySize, "history", cfg.HistorySize, "samples kept for get_time_series")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for generated data")
	f.StringVar(&logCfg.Level, "log-level", logCfg.Level, "log level (debug, info, warn, error)")
	f.StringVar(&logCfg.Format, "log-format", logCfg.Format, "log format (json or text)")

	return cmd
}

func run(ctx context.Context, cfg mock.Config, logCfg config.LoggingConfig) error {
	logger := logging.New(logCfg, version.Version)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := mock.NewServer(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("mock backend running",
		"addr", cfg.Addr,
		"tick", cfg.TickInterval,
		"ws_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Addr),
	)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	logger.Info("mock backend stopped", "runs_started", srv.Stats().RunsStarted)
	return nil
}
