// dashd runs the dashboard service: the resilient WebSocket transport to the
// load-testing backend, the HTTP proxy in front of the backend REST API, the
// optional TimescaleDB recorder, and Prometheus metrics.
//
// Usage: dashd --config configs/dashd.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/loadtest-dash/internal/api"
	"github.com/rickgao/loadtest-dash/internal/config"
	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/database"
	"github.com/rickgao/loadtest-dash/internal/logging"
	"github.com/rickgao/loadtest-dash/internal/metrics"
	"github.com/rickgao/loadtest-dash/internal/poller"
	"github.com/rickgao/loadtest-dash/internal/proxy"
	"github.com/rickgao/loadtest-dash/internal/router"
	"github.com/rickgao/loadtest-dash/internal/version"
	"github.com/rickgao/loadtest-dash/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/dashd.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnvFiles(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load env file:", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, version.Version)
	slog.SetDefault(logger)

	logger.Info("starting dashd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"rest_url", cfg.Backend.RestURL,
		"ws_url", cfg.Backend.WSURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Transport
	connMgr := connection.NewManager(cfg.ConnectionConfig(), logger.With("component", "connection"),
		connection.WithObserver(metrics.NewTransport(reg)),
	)
	metrics.RegisterQueue(reg, connMgr.Stats)

	unsubState := connMgr.SubscribeState(func(s connection.State) {
		logger.Info("transport state", "state", s)
	})
	defer unsubState()

	// Recorder
	var rec *recorder
	if cfg.Recorder.Enabled {
		rec, err = startRecorder(ctx, cfg, connMgr.Registry(), reg, logger)
		if err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Proxy
	apiClient := api.NewClient(
		cfg.Backend.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Backend.Timeout),
		api.WithRetries(cfg.Backend.MaxRetries, time.Second),
	)

	proxyServer := proxy.New(proxy.Config{
		Addr:            cfg.Server.Addr,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, proxy.Deps{
		Backend:   apiClient,
		Transport: connMgr,
		Metrics:   metrics.Handler(reg),
		Logger:    logger,
		Version:   version.Version,
	})
	if err := proxyServer.Start(ctx); err != nil {
		logger.Error("failed to start proxy", "error", err)
		os.Exit(1)
	}

	healthPoller := poller.New(poller.Config{
		Interval: cfg.Backend.HealthInterval,
		Timeout:  5 * time.Second,
	}, apiClient, nil, logger)
	metrics.RegisterBackendHealth(reg, healthPoller.Status)
	if err := healthPoller.Start(ctx); err != nil {
		logger.Error("failed to start health poller", "error", err)
		os.Exit(1)
	}

	// Ops server: metrics and component health on a separate port
	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createOpsHandler(cfg.Metrics.Path, reg, connMgr, healthPoller, rec),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting ops server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	// Initial connect. A failure schedules reconnects in the background.
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Transport.ConnectTimeout+time.Second)
	if err := connMgr.Connect(connectCtx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}
	connectCancel()

	go logStats(ctx, connMgr, rec, logger)

	logger.Info("dashd running", "addr", cfg.Server.Addr)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := proxyServer.Stop(shutdownCtx); err != nil {
		logger.Error("proxy shutdown failed", "error", err)
	}
	if err := healthPoller.Stop(shutdownCtx); err != nil {
		logger.Error("health poller stop failed", "error", err)
	}
	connMgr.Disconnect()
	if rec != nil {
		rec.stop(shutdownCtx)
	}
	opsServer.Shutdown(shutdownCtx)

	logger.Info("dashd stopped")
}

// recorder persists decoded frames to TimescaleDB.
type recorder struct {
	feed    *router.Feed
	points  *writer.PointWriter
	updates *writer.UpdateWriter
	pools   *database.Pools
	logger  *slog.Logger
}

func startRecorder(ctx context.Context, cfg *config.Config, registry *router.Registry, reg prometheus.Registerer, logger *slog.Logger) (*recorder, error) {
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pools, err := database.NewPools(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := writer.EnsureSchema(ctx, pools.Timescale); err != nil {
		pools.Close()
		return nil, err
	}

	feed := router.NewFeed(router.FeedConfig{
		PointBufferSize:  cfg.Recorder.PointBufferSize,
		UpdateBufferSize: cfg.Recorder.UpdateBufferSize,
		MaxBufferSize:    cfg.Recorder.MaxBufferSize,
	}, logger)

	wcfg := writer.WriterConfig{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
	}
	bufs := feed.Buffers()
	rec := &recorder{
		feed:    feed,
		points:  writer.NewPointWriter(wcfg, bufs.Points, pools.Timescale, logger),
		updates: writer.NewUpdateWriter(wcfg, bufs.Updates, pools.Timescale, logger),
		pools:   pools,
		logger:  logger,
	}

	metrics.RegisterBuffer(reg, "points", func() router.BufferStats { return feed.Stats().PointBuffer })
	metrics.RegisterBuffer(reg, "updates", func() router.BufferStats { return feed.Stats().UpdateBuffer })
	metrics.RegisterWriter(reg, "points", rec.points.Stats)
	metrics.RegisterWriter(reg, "updates", rec.updates.Stats)

	if err := rec.points.Start(ctx); err != nil {
		pools.Close()
		return nil, fmt.Errorf("start point writer: %w", err)
	}
	if err := rec.updates.Start(ctx); err != nil {
		rec.points.Stop(ctx)
		pools.Close()
		return nil, fmt.Errorf("start update writer: %w", err)
	}

	feed.Attach(registry)
	logger.Info("recorder started", "batch_size", wcfg.BatchSize, "flush_interval", wcfg.FlushInterval)
	return rec, nil
}

// stop detaches the feed so no new frames arrive, then lets the writers
// drain what is buffered.
func (r *recorder) stop(ctx context.Context) {
	r.feed.Detach()
	if err := r.points.Stop(ctx); err != nil {
		r.logger.Error("point writer stop failed", "error", err)
	}
	if err := r.updates.Stop(ctx); err != nil {
		r.logger.Error("update writer stop failed", "error", err)
	}
	r.pools.Close()
}

// createOpsHandler serves Prometheus metrics and a component health report.
func createOpsHandler(metricsPath string, g prometheus.Gatherer, connMgr *connection.Manager, hp *poller.Poller, rec *recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler(g))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := connMgr.Stats()
		health.Components["transport"] = map[string]any{
			"state":              stats.State.String(),
			"reconnect_attempts": stats.ReconnectAttempts,
			"queue_length":       stats.QueueLen,
		}
		if !stats.State.Open() {
			health.Status = "degraded"
		}

		backend := hp.Status()
		health.Components["backend"] = map[string]any{
			"up":                   backend.Up,
			"last_checked":         backend.LastChecked,
			"consecutive_failures": backend.ConsecutiveFailures,
			"last_error":           backend.LastError,
		}
		if backend.Checked && !backend.Up {
			health.Status = "degraded"
		}

		if rec != nil {
			if err := rec.pools.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

func logStats(ctx context.Context, connMgr *connection.Manager, rec *recorder, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := connMgr.Stats()
			attrs := []any{
				"state", cs.State.String(),
				"frames_received", cs.FramesReceived,
				"frames_dropped", cs.FramesDropped,
				"frames_sent", cs.FramesSent,
				"queue_len", cs.QueueLen,
				"queue_evicted", cs.QueueEvicted,
			}
			if rec != nil {
				fs := rec.feed.Stats()
				pw, uw := rec.points.Stats(), rec.updates.Stats()
				attrs = append(attrs,
					"point_buf", fs.PointBuffer.Count,
					"update_buf", fs.UpdateBuffer.Count,
					"points_inserted", pw.Inserts,
					"updates_inserted", uw.Inserts,
					"write_errors", pw.Errors+uw.Errors,
				)
			}
			logger.Info("stats", attrs...)
		}
	}
}
