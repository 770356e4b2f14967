package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrDisconnected    = errors.New("disconnected")
	ErrClosed          = errors.New("socket closed")
	ErrStaleConnection = errors.New("connection stale (missed heartbeats)")
)

// Config configures the Manager.
type Config struct {
	URL string // WebSocket URL (e.g., ws://localhost:3001/ws)

	ConnectTimeout time.Duration // Max time for a dial to open
	WriteTimeout   time.Duration // Write deadline for sends

	HeartbeatInterval      time.Duration // Probe interval while connected
	HeartbeatTimeout       time.Duration // Silence longer than this counts as a miss
	HeartbeatMissThreshold int           // Consecutive misses that force a reconnect
	ProbeTimeout           time.Duration // CheckStability wait for pong

	ReconnectBase        time.Duration // First retry delay
	ReconnectMultiplier  float64       // Growth per attempt
	ReconnectCap         time.Duration // Max retry delay
	MaxReconnectAttempts int           // Automatic attempts before cooling down
	ReconnectCooldown    time.Duration // Wait before attempts reset after exhaustion

	QueueCapacity int           // Outbound queue size, oldest dropped past this
	StateDebounce time.Duration // Observer debounce window
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:                    "ws://localhost:3001/ws",
		ConnectTimeout:         5 * time.Second,
		WriteTimeout:           5 * time.Second,
		HeartbeatInterval:      15 * time.Second,
		HeartbeatTimeout:       30 * time.Second,
		HeartbeatMissThreshold: 2,
		ProbeTimeout:           5 * time.Second,
		ReconnectBase:          1 * time.Second,
		ReconnectMultiplier:    1.5,
		ReconnectCap:           30 * time.Second,
		MaxReconnectAttempts:   10,
		ReconnectCooldown:      60 * time.Second,
		QueueCapacity:          50,
		StateDebounce:          300 * time.Millisecond,
	}
}

// withDefaults fills zero or negative durations and a non-positive
// multiplier from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	durations := []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&c.ConnectTimeout, d.ConnectTimeout},
		{&c.WriteTimeout, d.WriteTimeout},
		{&c.HeartbeatInterval, d.HeartbeatInterval},
		{&c.HeartbeatTimeout, d.HeartbeatTimeout},
		{&c.ProbeTimeout, d.ProbeTimeout},
		{&c.ReconnectBase, d.ReconnectBase},
		{&c.ReconnectCap, d.ReconnectCap},
		{&c.ReconnectCooldown, d.ReconnectCooldown},
	}
	for _, f := range durations {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	if c.ReconnectMultiplier <= 0 {
		c.ReconnectMultiplier = d.ReconnectMultiplier
	}
	return c
}

// Observer receives transport events for instrumentation.
// Methods may be called with the Manager's mutex held and must not call
// back into the Manager.
type Observer interface {
	StateChanged(from, to State)
	ReconnectScheduled(attempt int, delay time.Duration)
	ReconnectsExhausted()
	FrameReceived(typ string)
	FrameDropped(reason string)
	FrameSent()
	Queued(evicted bool)
	HeartbeatMissed(misses int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) ReconnectsExhausted() {}
func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameDropped(string) {}
func (nopObserver) FrameSent() {}
func (nopObserver) Queued(bool) {}
func (nopObserver) HeartbeatMissed(int) {}

// Stats is a point-in-time view of the Manager.
type Stats struct {
	State             State
	ReconnectAttempts int
	QueueLen          int
	QueueEvicted      int64
	Announcements     int

	FramesReceived int64
	FramesDropped  int64
	FramesSent     int64

	ReconnectPending    bool
	CooldownPending     bool
	ConnectTimerPending bool
	HeartbeatRunning    bool
	DebouncePending     bool
}

// Quiescent reports whether no timer or background loop is pending.
func (s Stats) Quiescent() bool {
	return !s.ReconnectPending &&
		!s.CooldownPending &&
		!s.ConnectTimerPending &&
		!s.HeartbeatRunning &&
		!s.DebouncePending
}
