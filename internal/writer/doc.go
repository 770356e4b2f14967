// Package writer persists decoded transport data to TimescaleDB.
//
// Writers:
//   - Point writer: live and history time-series samples (time_series)
//   - Update writer: test progress updates (test_updates)
//
// Writers drain a router.GrowableBuffer, accumulate rows and flush them with
// pgx.Batch either when the batch is full or on a fixed interval. Inserts are
// append-only with ON CONFLICT DO NOTHING, so history replays after a
// reconnect do not duplicate rows.
package writer
