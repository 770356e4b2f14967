package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/loadtest-dash/internal/router"
)

const insertPointSQL = `
	INSERT INTO time_series (ts, received_at, requests_per_second, average_response_time, error_rate, concurrent_users, history)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (ts) DO NOTHING
`

// PointWriter consumes PointMsg from the feed and writes to the time_series table.
type PointWriter struct {
	*batcher[router.PointMsg, pointRow]
}

// NewPointWriter creates a new PointWriter.
func NewPointWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.PointMsg],
	db BatchSender,
	logger *slog.Logger,
) *PointWriter {
	return &PointWriter{
		batcher: newBatcher("point_writer", cfg, input, db, logger, transformPoint, queuePoint),
	}
}

// transformPoint converts a PointMsg to a pointRow. Points without a
// timestamp cannot be keyed.
func transformPoint(msg router.PointMsg) (pointRow, error) {
	p := msg.Point
	if p.Timestamp <= 0 {
		return pointRow{}, ErrMissingTimestamp
	}

	row := pointRow{
		Timestamp:           p.Timestamp,
		ReceivedAt:          msg.ReceivedAt.UnixMicro(),
		RequestsPerSecond:   p.RequestsPerSecond,
		AverageResponseTime: p.AverageResponseTime,
		ErrorRate:           p.ErrorRate,
		History:             msg.History,
	}
	if p.ConcurrentUsers != nil {
		users := int32(*p.ConcurrentUsers)
		row.ConcurrentUsers = &users
	}
	return row, nil
}

func queuePoint(b *pgx.Batch, r pointRow) {
	b.Queue(insertPointSQL,
		r.Timestamp, r.ReceivedAt, r.RequestsPerSecond, r.AverageResponseTime,
		r.ErrorRate, r.ConcurrentUsers, r.History,
	)
}
