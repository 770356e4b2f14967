package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("backend.rest_url", c.Backend.RestURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("backend.ws_url", c.Backend.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("backend.max_retries must be >= 0")
	}
	if c.Backend.HealthInterval < 0 {
		return errors.New("backend.health_interval must be >= 0")
	}

	if c.Transport.HeartbeatMissThreshold < 1 {
		return errors.New("transport.heartbeat_miss_threshold must be >= 1")
	}
	if c.Transport.ReconnectMultiplier < 1 {
		return fmt.Errorf("transport.reconnect_multiplier must be >= 1, got %g", c.Transport.ReconnectMultiplier)
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectBaseDelay {
		return errors.New("transport.reconnect_max_delay cannot be less than reconnect_base_delay")
	}
	if c.Transport.MaxReconnectAttempts < 1 {
		return errors.New("transport.max_reconnect_attempts must be >= 1")
	}
	if c.Transport.QueueCapacity < 1 {
		return errors.New("transport.queue_capacity must be >= 1")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if c.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1")
	}

	if c.Recorder.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.MaxBufferSize < c.Recorder.PointBufferSize || c.Recorder.MaxBufferSize < c.Recorder.UpdateBufferSize {
			return errors.New("recorder.max_buffer_size cannot be less than the initial buffer sizes")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
