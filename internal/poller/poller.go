package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// HealthChecker fetches the backend health document.
type HealthChecker interface {
	Health(ctx context.Context) (json.RawMessage, error)
}

// StatusHandler receives the status after every check.
type StatusHandler interface {
	HandleStatus(status Status)
}

// StatusHandlerFunc is a function adapter for StatusHandler.
type StatusHandlerFunc func(Status)

func (f StatusHandlerFunc) HandleStatus(s Status) {
	f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Status is the outcome of the most recent checks.
type Status struct {
	Up                  bool
	Checked             bool // false until the first check completes
	LastChecked         time.Time
	LastError           string
	LastBody            json.RawMessage
	ConsecutiveFailures int
	Checks              int64
	Failures            int64
}

// Poller periodically checks backend health.
type Poller struct {
	cfg     Config
	checker HealthChecker
	handler StatusHandler
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	status Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. handler may be nil.
func New(cfg Config, checker HealthChecker, handler StatusHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		checker: checker,
		handler: handler,
		logger:  logger.With("component", "health_poller"),
		now:     time.Now,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("health poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("health poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Check immediately on start.
	p.check(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.check(p.ctx)
		}
	}
}

// check performs one health request and records the outcome.
func (p *Poller) check(ctx context.Context) Status {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := p.checker.Health(reqCtx)
	if err != nil && ctx.Err() != nil {
		// shutting down, not a backend failure
		return p.Status()
	}

	p.mu.Lock()
	prev := p.status
	s := prev
	s.Checked = true
	s.LastChecked = p.now()
	s.Checks++
	if err != nil {
		s.Up = false
		s.LastError = err.Error()
		s.ConsecutiveFailures++
		s.Failures++
	} else {
		s.Up = true
		s.LastError = ""
		s.LastBody = body
		s.ConsecutiveFailures = 0
	}
	p.status = s
	p.mu.Unlock()

	switch {
	case err != nil && (prev.Up || !prev.Checked):
		p.logger.Warn("backend health check failed", "error", err)
	case err != nil:
		p.logger.Debug("backend still down", "failures", s.ConsecutiveFailures, "error", err)
	case !prev.Up && prev.Checked:
		p.logger.Info("backend recovered", "after_failures", prev.ConsecutiveFailures)
	}

	if p.handler != nil {
		p.handler.HandleStatus(s)
	}
	return s
}
