package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/model"
)

// Backend starts runs on the test engine.
type Backend interface {
	Health(ctx context.Context) (json.RawMessage, error)
	StartLoadTest(ctx context.Context, cfg model.LoadTestConfig) (*model.TestResult, error)
	StartStressTest(ctx context.Context, cfg model.StressTestConfig) (*model.TestResult, error)
	StartAPITest(ctx context.Context, cfg model.APITestConfig) (*model.TestResult, error)
}

// TransportStatus reports the WebSocket transport state.
type TransportStatus interface {
	Stats() connection.Stats
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		RateLimitRPS:    5,
		RateLimitBurst:  10,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Deps holds the collaborators of the server. Transport and Metrics are
// optional.
type Deps struct {
	Backend   Backend
	Transport TransportStatus
	Metrics   http.Handler
	Logger    *slog.Logger
	Version   string
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg       Config
	backend   Backend
	transport TransportStatus
	metrics   http.Handler
	limiter   *clientLimiter
	logger    *slog.Logger
	version   string
	now       func() time.Time

	server *http.Server
}

// New creates a Server.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Server{
		cfg:       cfg,
		backend:   deps.Backend,
		transport: deps.Transport,
		metrics:   deps.Metrics,
		limiter:   newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Now),
		logger:    logger.With("component", "proxy"),
		version:   deps.Version,
		now:       time.Now,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, model.APIResponse[model.TestResult]{
			Success: false,
			Message: "Method not allowed",
		})
	})

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleBackendHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Use(s.rateLimitMiddleware)
			r.Use(bodySizeLimitMiddleware)

			r.Post("/load-test", s.handleLoadTest)
			r.Post("/stress-test", s.handleStressTest)
			r.Post("/api-test", s.handleAPITest)
		})
	})

	return r
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
