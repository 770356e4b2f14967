package router

import (
	"time"

	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/protocol"
)

// Handler receives one decoded message.
type Handler func(msg protocol.Message)

// FeedConfig holds buffer sizing for the recorder feed.
type FeedConfig struct {
	PointBufferSize  int // Default: 1000
	UpdateBufferSize int // Default: 500
	MaxBufferSize    int // Default: 100000, oldest items are dropped past this
}

// DefaultFeedConfig returns default configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PointBufferSize:  1000,
		UpdateBufferSize: 500,
		MaxBufferSize:    100000,
	}
}

// PointMsg is a time-series sample tagged with its local receive time.
type PointMsg struct {
	Point      model.TimeSeriesPoint
	History    bool // true when delivered as part of a history snapshot
	ReceivedAt time.Time
}

// UpdateMsg is a test update tagged with its local receive time.
type UpdateMsg struct {
	Update     model.TestUpdate
	ReceivedAt time.Time
}

// RegistryStats contains dispatch counters.
type RegistryStats struct {
	Received      int64 // messages passed to Dispatch
	Delivered     int64 // handler invocations that returned normally
	Unhandled     int64 // messages with no subscriber at all
	Panics        int64 // handler invocations that panicked
	PayloadErrors int64 // typed payloads that failed to decode
}
