package config

import (
	"time"

	"github.com/rickgao/loadtest-dash/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL          = "http://localhost:3001"
	DefaultWSURL            = "ws://localhost:3001/ws"
	DefaultBackendTimeout   = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultHealthInterval   = 30 * time.Second
	DefaultServerAddr       = ":8080"
	DefaultRateLimitRPS     = 5
	DefaultRateLimitBurst   = 10
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 1000
	DefaultFlushInterval    = 1 * time.Second
	DefaultPointBufferSize  = 1000
	DefaultUpdateBufferSize = 500
	DefaultMaxBufferSize    = 100000
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *Config) applyDefaults() {
	// Backend defaults
	if c.Backend.RestURL == "" {
		c.Backend.RestURL = DefaultRestURL
	}
	if c.Backend.WSURL == "" {
		c.Backend.WSURL = DefaultWSURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = DefaultMaxRetries
	}
	if c.Backend.HealthInterval == 0 {
		c.Backend.HealthInterval = DefaultHealthInterval
	}

	applyTransportDefaults(&c.Transport)

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = DefaultRateLimitRPS
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.PointBufferSize == 0 {
		c.Recorder.PointBufferSize = DefaultPointBufferSize
	}
	if c.Recorder.UpdateBufferSize == 0 {
		c.Recorder.UpdateBufferSize = DefaultUpdateBufferSize
	}
	if c.Recorder.MaxBufferSize == 0 {
		c.Recorder.MaxBufferSize = DefaultMaxBufferSize
	}

	applyDBDefaults(&c.Database.Timescale)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyTransportDefaults(t *TransportConfig) {
	d := connection.DefaultConfig()
	if t.ConnectTimeout == 0 {
		t.ConnectTimeout = d.ConnectTimeout
	}
	if t.WriteTimeout == 0 {
		t.WriteTimeout = d.WriteTimeout
	}
	if t.HeartbeatInterval == 0 {
		t.HeartbeatInterval = d.HeartbeatInterval
	}
	if t.HeartbeatTimeout == 0 {
		t.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if t.HeartbeatMissThreshold == 0 {
		t.HeartbeatMissThreshold = d.HeartbeatMissThreshold
	}
	if t.ProbeTimeout == 0 {
		t.ProbeTimeout = d.ProbeTimeout
	}
	if t.ReconnectBaseDelay == 0 {
		t.ReconnectBaseDelay = d.ReconnectBase
	}
	if t.ReconnectMultiplier == 0 {
		t.ReconnectMultiplier = d.ReconnectMultiplier
	}
	if t.ReconnectMaxDelay == 0 {
		t.ReconnectMaxDelay = d.ReconnectCap
	}
	if t.MaxReconnectAttempts == 0 {
		t.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if t.ReconnectCooldown == 0 {
		t.ReconnectCooldown = d.ReconnectCooldown
	}
	if t.QueueCapacity == 0 {
		t.QueueCapacity = d.QueueCapacity
	}
	if t.StateDebounce == 0 {
		t.StateDebounce = d.StateDebounce
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// ConnectionConfig converts the backend and transport sections into the
// WebSocket manager's configuration.
func (c *Config) ConnectionConfig() connection.Config {
	t := c.Transport
	return connection.Config{
		URL:                    c.Backend.WSURL,
		ConnectTimeout:         t.ConnectTimeout,
		WriteTimeout:           t.WriteTimeout,
		HeartbeatInterval:      t.HeartbeatInterval,
		HeartbeatTimeout:       t.HeartbeatTimeout,
		HeartbeatMissThreshold: t.HeartbeatMissThreshold,
		ProbeTimeout:           t.ProbeTimeout,
		ReconnectBase:          t.ReconnectBaseDelay,
		ReconnectMultiplier:    t.ReconnectMultiplier,
		ReconnectCap:           t.ReconnectMaxDelay,
		MaxReconnectAttempts:   t.MaxReconnectAttempts,
		ReconnectCooldown:      t.ReconnectCooldown,
		QueueCapacity:          t.QueueCapacity,
		StateDebounce:          t.StateDebounce,
	}
}
