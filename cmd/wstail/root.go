package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/loadtest-dash/internal/config"
	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/logging"
	"github.com/rickgao/loadtest-dash/internal/router"
	"github.com/rickgao/loadtest-dash/internal/version"
)

type options struct {
	configPath string
	url        string
	verbose    bool
	noColor    bool
	types      []string
	announce   string
	logLevel   string
	statsEvery time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "wstail",
		Short: "wstail - stream load test frames from the backend WebSocket",
		Long: `wstail opens the same resilient transport the dashboard uses and prints every
decoded frame: time-series samples, history snapshots, test updates and metrics.

Reconnects, heartbeats and backoff behave exactly as in dashd, so wstail is also
a quick way to watch the transport recover from backend restarts.`,
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "dashd config file (transport settings and ws_url)")
	f.StringVarP(&opts.url, "url", "u", "", "WebSocket URL (overrides the config)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print full payload JSON")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.StringSliceVarP(&opts.types, "type", "t", nil, "unrecognised message types to print raw")
	f.StringVar(&opts.announce, "announce", "", "JSON payload re-sent on every connect")
	f.StringVar(&opts.logLevel, "log-level", "warn", "transport log level")
	f.DurationVar(&opts.statsEvery, "stats", 0, "print transport stats at this interval (0 disables)")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := logging.NewWithWriter(os.Stderr, config.LoggingConfig{Level: opts.logLevel, Format: "text"}, version.Version)

	connCfg := connection.DefaultConfig()
	if opts.configPath != "" {
		cfg, err := config.LoadAndValidate(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		connCfg = cfg.ConnectionConfig()
	}
	if opts.url != "" {
		connCfg.URL = opts.url
	}

	p := newPrinter(os.Stdout, opts.verbose, opts.noColor)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connMgr := connection.NewManager(connCfg, logger)
	defer connMgr.Disconnect()

	unsubState := connMgr.SubscribeState(p.state)
	defer unsubState()

	// Points and updates go through the feed buffers so a slow terminal
	// never stalls the read loop.
	feed := router.NewFeed(router.DefaultFeedConfig(), logger)
	feed.Attach(connMgr.Registry())
	defer feed.Detach()

	bufs := feed.Buffers()
	go tail(ctx, bufs.Points, p.point)
	go tail(ctx, bufs.Updates, p.update)

	connMgr.Registry().SubscribeMetrics(p.metrics)
	for _, typ := range opts.types {
		connMgr.Registry().SubscribeType(typ, p.raw)
	}

	if opts.announce != "" {
		if !json.Valid([]byte(opts.announce)) {
			return fmt.Errorf("--announce must be valid JSON")
		}
		withdraw := connMgr.Announce(json.RawMessage(opts.announce))
		defer withdraw()
	}

	p.info("connecting to %s", connCfg.URL)
	connectCtx, connectCancel := context.WithTimeout(ctx, connCfg.ConnectTimeout+time.Second)
	err := connMgr.Connect(connectCtx)
	connectCancel()
	if err != nil {
		p.warn("initial connect failed: %v (retrying in background)", err)
	}

	if opts.statsEvery > 0 {
		go printStats(ctx, opts.statsEvery, connMgr, feed, p)
	}

	<-ctx.Done()
	p.info("shutting down")
	return nil
}

// tail polls buf until ctx is done.
func tail[T any](ctx context.Context, buf *router.GrowableBuffer[T], print func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := buf.TryReceive()
		if !ok {
			if buf.Closed() {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		print(msg)
	}
}

func printStats(ctx context.Context, every time.Duration, connMgr *connection.Manager, feed *router.Feed, p *printer) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := connMgr.Stats()
			fs := feed.Stats()
			p.info("stats state=%s received=%d dropped=%d sent=%d queue=%d reconnects=%d point_buf=%d update_buf=%d",
				cs.State, cs.FramesReceived, cs.FramesDropped, cs.FramesSent, cs.QueueLen,
				cs.ReconnectAttempts, fs.PointBuffer.Count, fs.UpdateBuffer.Count)
		}
	}
}
