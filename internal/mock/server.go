package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/protocol"
)

// ErrShuttingDown is returned when a run is requested after Close.
var ErrShuttingDown = errors.New("mock backend is shutting down")

// Config configures the mock backend.
type Config struct {
	Addr         string
	TickInterval time.Duration // spacing between simulated samples
	HistorySize  int           // samples kept for get_time_series
	Seed         uint64
}

// DefaultConfig returns the mock backend defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":3001",
		TickInterval: time.Second,
		HistorySize:  100,
		Seed:         1,
	}
}

// Stats is a snapshot of mock backend activity.
type Stats struct {
	Clients       int
	ActiveRuns    int
	RunsStarted   int64
	FramesDropped int64
}

// Server is an offline stand-in for the load-testing backend.
type Server struct {
	cfg      Config
	gen      *Generator
	hub      *hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	history     []model.TimeSeriesPoint
	activeRuns  int
	runsStarted int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	server *http.Server
}

// NewServer creates a mock backend.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	logger = logger.With("component", "mock")

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg: cfg,
		gen: NewGenerator(cfg.Seed, nil),
		hub: newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/load-test", s.handleStart(model.TestTypeLoad))
		r.Post("/stress-test", s.handleStart(model.TestTypeStress))
		r.Post("/api-test", s.handleStart(model.TestTypeAPI))
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
			s.logger.Error("mock server error", "error", err)
		}
	}()

	s.logger.Info("mock backend started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts down the listener, cancels running simulations and
// disconnects every WebSocket client.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown mock server: %w", shutdownErr)
		}
	}
	s.Close()
	return err
}

// Close cancels running simulations, waits for them and disconnects every
// WebSocket client.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.hub.closeAll()
}

// Stats returns a snapshot of server activity.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active, started := s.activeRuns, s.runsStarted
	s.mu.Unlock()

	s.hub.mu.Lock()
	dropped := s.hub.dropped
	s.hub.mu.Unlock()

	return Stats{
		Clients:       s.hub.count(),
		ActiveRuns:    active,
		RunsStarted:   started,
		FramesDropped: dropped,
	}
}

// History returns a copy of the retained samples, oldest first.
func (s *Server) History() []model.TimeSeriesPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TimeSeriesPoint, len(s.history))
	copy(out, s.history)
	return out
}

// -----------------------------------------------------------------------------
// REST
// -----------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"mode":        "mock",
		"clients":     stats.Clients,
		"active_runs": stats.ActiveRuns,
	})
}

func (s *Server) handleStart(testType model.TestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		result, err := s.StartRun(testType)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}

		s.logger.Info("mock run started", "id", result.ID, "type", testType, "target", body["target_url"])
		writeJSON(w, http.StatusOK, result)
	}
}

// StartRun launches a simulated run and returns the accepted result.
func (s *Server) StartRun(testType model.TestType) (model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return model.TestResult{}, ErrShuttingDown
	}

	result := model.TestResult{
		ID:        uuid.NewString(),
		TestType:  testType,
		Status:    model.StatusStarted,
		Timestamp: s.now().UnixMilli(),
	}

	s.activeRuns++
	s.runsStarted++
	s.wg.Add(1)
	go s.simulate(result.ID, testType)

	return result, nil
}

// -----------------------------------------------------------------------------
// Simulation
// -----------------------------------------------------------------------------

// simulate streams one run: a time_series and a test_update frame per tick,
// then a final completed update.
func (s *Server) simulate(id string, testType model.TestType) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.activeRuns--
		s.mu.Unlock()
	}()

	points := s.gen.FakeTestData(testType)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var last model.TimeSeriesPoint
	for i, pt := range points {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		pt.Timestamp = s.now().UnixMilli()
		last = pt
		s.record(pt)

		progress := math.Min(99, math.Floor(float64(i)/float64(len(points))*100))
		metrics := CreateTestMetrics(progress, pt, testType)

		s.publish(protocol.TypeTimeSeries, pt)
		s.publish(protocol.TypeTestUpdate, model.TestUpdate{
			ID:        id,
			TestType:  testType,
			Status:    model.StatusRunning,
			Progress:  progress,
			Metrics:   &metrics,
			Timestamp: pt.Timestamp,
		})
	}

	final := CreateTestMetrics(100, last, testType)
	s.publish(protocol.TypeTestUpdate, model.TestUpdate{
		ID:        id,
		TestType:  testType,
		Status:    model.StatusCompleted,
		Progress:  100,
		Metrics:   &final,
		Timestamp: s.now().UnixMilli(),
	})
	s.logger.Info("mock run completed", "id", id, "type", testType)
}

func (s *Server) record(pt model.TimeSeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, pt)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

func (s *Server) publish(typ string, data any) {
	frame, err := protocol.EncodeEnvelope(typ, data)
	if err != nil {
		s.logger.Error("encode mock frame", "type", typ, "error", err)
		return
	}
	s.hub.broadcast(frame)
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	s.hub.register(c)
	go c.writePump(s.logger)

	s.readPump(c)
}

// readPump answers control frames until the peer goes away.
func (s *Server) readPump(c *client) {
	defer s.hub.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("mock client read failed", "error", err)
			}
			return
		}

		switch string(data) {
		case protocol.Ping:
			c.enqueue([]byte(protocol.Pong))
		case protocol.TimeSeriesRequest:
			frame, err := protocol.EncodeEnvelope(protocol.TypeTimeSeriesHistory, s.History())
			if err != nil {
				s.logger.Error("encode history", "error", err)
				continue
			}
			c.enqueue(frame)
		default:
			frame, err := protocol.Decode(data)
			if err != nil {
				s.logger.Debug("mock ignored frame", "error", err)
				continue
			}
			s.logger.Debug("mock received message", "type", frame.Message.Type)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
