package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/loadtest-dash/internal/router"
)

const insertUpdateSQL = `
	INSERT INTO test_updates (test_id, test_type, status, progress, requests_completed, total_requests,
		average_response_time, error_rate, requests_per_second, status_codes, error, ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (test_id, ts, status) DO NOTHING
`

// UpdateWriter consumes UpdateMsg from the feed and writes to the test_updates table.
type UpdateWriter struct {
	*batcher[router.UpdateMsg, updateRow]
}

// NewUpdateWriter creates a new UpdateWriter.
func NewUpdateWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.UpdateMsg],
	db BatchSender,
	logger *slog.Logger,
) *UpdateWriter {
	return &UpdateWriter{
		batcher: newBatcher("update_writer", cfg, input, db, logger, transformUpdate, queueUpdate),
	}
}

// transformUpdate converts an UpdateMsg to an updateRow. Updates without a
// test id cannot be keyed.
func transformUpdate(msg router.UpdateMsg) (updateRow, error) {
	u := msg.Update
	if u.ID == "" {
		return updateRow{}, ErrMissingTestID
	}

	ts := u.Timestamp
	if ts == 0 {
		ts = msg.ReceivedAt.UnixMilli()
	}

	row := updateRow{
		TestID:     u.ID,
		TestType:   string(u.TestType),
		Status:     string(u.Status),
		Progress:   u.Progress,
		Timestamp:  ts,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
	}
	if u.Error != "" {
		e := u.Error
		row.Error = &e
	}
	if m := u.Metrics; m != nil {
		row.RequestsCompleted = &m.RequestsCompleted
		row.TotalRequests = &m.TotalRequests
		row.AverageResponseTime = &m.AverageResponseTime
		row.ErrorRate = &m.ErrorRate
		row.RequestsPerSecond = &m.RequestsPerSecond
		if len(m.StatusCodes) > 0 {
			codes, err := json.Marshal(m.StatusCodes)
			if err != nil {
				return updateRow{}, fmt.Errorf("marshal status codes for %s: %w", u.ID, err)
			}
			row.StatusCodes = codes
		}
	}
	return row, nil
}

func queueUpdate(b *pgx.Batch, r updateRow) {
	b.Queue(insertUpdateSQL,
		r.TestID, r.TestType, r.Status, r.Progress, r.RequestsCompleted, r.TotalRequests,
		r.AverageResponseTime, r.ErrorRate, r.RequestsPerSecond, r.StatusCodes, r.Error,
		r.Timestamp, r.ReceivedAt,
	)
}
