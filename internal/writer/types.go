package writer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Errors
var (
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrMissingTestID    = errors.New("missing test id")
)

// WriterMetrics contains writer counters.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Skipped   int64 // messages that could not be turned into a row
}

// BatchSender is the subset of *pgxpool.Pool the writers need.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// pointRow represents a row in the time_series table.
type pointRow struct {
	Timestamp           int64 // Milliseconds, as sent by the backend
	ReceivedAt          int64 // Microseconds
	RequestsPerSecond   float64
	AverageResponseTime float64
	ErrorRate           float64
	ConcurrentUsers     *int32
	History             bool
}

// updateRow represents a row in the test_updates table.
type updateRow struct {
	TestID              string
	TestType            string
	Status              string
	Progress            float64
	RequestsCompleted   *int64
	TotalRequests       *int64
	AverageResponseTime *float64
	ErrorRate           *float64
	RequestsPerSecond   *float64
	StatusCodes         []byte // JSONB, nil when no metrics
	Error               *string
	Timestamp           int64 // Milliseconds
	ReceivedAt          int64 // Microseconds
}
