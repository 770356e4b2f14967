package config

import "time"

// Config is the root configuration for a dashboard instance.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Transport TransportConfig `yaml:"transport"`
	Server    ServerConfig    `yaml:"server"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BackendConfig holds the test engine endpoints.
type BackendConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// TransportConfig holds WebSocket transport tuning. Zero values take the
// transport defaults.
type TransportConfig struct {
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	WriteTimeout           time.Duration `yaml:"write_timeout"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout       time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatMissThreshold int           `yaml:"heartbeat_miss_threshold"`
	ProbeTimeout           time.Duration `yaml:"probe_timeout"`
	ReconnectBaseDelay     time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMultiplier    float64       `yaml:"reconnect_multiplier"`
	ReconnectMaxDelay      time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts   int           `yaml:"max_reconnect_attempts"`
	ReconnectCooldown      time.Duration `yaml:"reconnect_cooldown"`
	QueueCapacity          int           `yaml:"queue_capacity"`
	StateDebounce          time.Duration `yaml:"state_debounce"`
}

// ServerConfig holds the dashboard HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RecorderConfig holds the TimescaleDB recorder settings.
type RecorderConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BatchSize        int           `yaml:"batch_size"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
	PointBufferSize  int           `yaml:"point_buffer_size"`
	UpdateBufferSize int           `yaml:"update_buffer_size"`
	MaxBufferSize    int           `yaml:"max_buffer_size"`
}

// DatabaseConfig holds the TimescaleDB connection used by the recorder.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
