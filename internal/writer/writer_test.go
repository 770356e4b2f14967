package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/router"
)

// fakeDB records batches and answers each queued statement in order.
type fakeDB struct {
	mu        sync.Mutex
	batches   []*pgx.Batch
	conflicts map[int]bool // statement index within a batch that hits a conflict
	err       error
	execs     []string
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return &fakeResults{db: f, n: b.Len()}
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.err
}

func (f *fakeDB) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeDB) queued() []*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pgx.QueuedQuery
	for _, b := range f.batches {
		out = append(out, b.QueuedQueries...)
	}
	return out
}

type fakeResults struct {
	db  *fakeDB
	n   int
	pos int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	i := r.pos
	r.pos++
	if r.db.conflicts[i] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row { return nil }
func (r *fakeResults) Close() error { return nil }

func intPtr(v int) *int { return &v }

func TestTransformPoint(t *testing.T) {
	receivedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	msg := router.PointMsg{
		Point: model.TimeSeriesPoint{
			Timestamp:           1705320000000,
			RequestsPerSecond:   120.5,
			AverageResponseTime: 85.2,
			ErrorRate:           1.5,
			ConcurrentUsers:     intPtr(25),
		},
		History:    true,
		ReceivedAt: receivedAt,
	}

	row, err := transformPoint(msg)
	require.NoError(t, err)
	assert.Equal(t, int64(1705320000000), row.Timestamp)
	assert.Equal(t, receivedAt.UnixMicro(), row.ReceivedAt)
	assert.Equal(t, 120.5, row.RequestsPerSecond)
	assert.Equal(t, 85.2, row.AverageResponseTime)
	assert.Equal(t, 1.5, row.ErrorRate)
	require.NotNil(t, row.ConcurrentUsers)
	assert.Equal(t, int32(25), *row.ConcurrentUsers)
	assert.True(t, row.History)
}

func TestTransformPoint_SkipsMissingTimestamp(t *testing.T) {
	_, err := transformPoint(router.PointMsg{ReceivedAt: time.Now()})
	assert.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestTransformUpdate(t *testing.T) {
	receivedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	msg := router.UpdateMsg{
		Update: model.TestUpdate{
			ID:       "run-1",
			TestType: model.TestTypeLoad,
			Status:   model.StatusRunning,
			Progress: 42,
			Metrics: &model.TestMetrics{
				RequestsCompleted: 420,
				TotalRequests:     1000,
				StatusCodes:       map[int]int64{200: 410, 500: 10},
			},
		},
		ReceivedAt: receivedAt,
	}

	row, err := transformUpdate(msg)
	require.NoError(t, err)
	assert.Equal(t, "run-1", row.TestID)
	assert.Equal(t, string(model.TestTypeLoad), row.TestType)
	assert.Equal(t, string(model.StatusRunning), row.Status)
	assert.Equal(t, receivedAt.UnixMilli(), row.Timestamp, "missing timestamp falls back to receipt time")
	require.NotNil(t, row.RequestsCompleted)
	assert.Equal(t, int64(420), *row.RequestsCompleted)
	assert.JSONEq(t, `{"200":410,"500":10}`, string(row.StatusCodes))
	assert.Nil(t, row.Error)
}

func TestTransformUpdate_NoMetrics(t *testing.T) {
	row, err := transformUpdate(router.UpdateMsg{
		Update: model.TestUpdate{ID: "run-2", Status: model.StatusError, Error: "target unreachable", Timestamp: 10},
	})
	require.NoError(t, err)
	assert.Nil(t, row.RequestsCompleted)
	assert.Nil(t, row.StatusCodes)
	require.NotNil(t, row.Error)
	assert.Equal(t, "target unreachable", *row.Error)
	assert.Equal(t, int64(10), row.Timestamp)
}

func TestTransformUpdate_SkipsMissingID(t *testing.T) {
	_, err := transformUpdate(router.UpdateMsg{Update: model.TestUpdate{Status: model.StatusRunning}})
	assert.ErrorIs(t, err, ErrMissingTestID)
}

func TestPointWriter_FlushCountsConflicts(t *testing.T) {
	db := &fakeDB{conflicts: map[int]bool{1: true}}
	input := router.NewGrowableBuffer[router.PointMsg](10, 100)
	w := NewPointWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil)

	for i := 1; i <= 3; i++ {
		w.add(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: int64(i)}, ReceivedAt: time.Now()})
	}
	w.flush(context.Background())

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Inserts)
	assert.Equal(t, int64(1), stats.Conflicts)
	assert.Equal(t, int64(1), stats.Flushes)
	require.Len(t, db.queued(), 3)
	assert.Equal(t, insertPointSQL, db.queued()[0].SQL)
}

func TestPointWriter_FlushErrorCounted(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	input := router.NewGrowableBuffer[router.PointMsg](10, 100)
	w := NewPointWriter(DefaultWriterConfig(), input, db, nil)

	w.add(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: 1}})
	w.flush(context.Background())

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(0), stats.Inserts)
}

func TestWriter_FlushEmptyBatchIsNoop(t *testing.T) {
	db := &fakeDB{}
	w := NewUpdateWriter(DefaultWriterConfig(), router.NewGrowableBuffer[router.UpdateMsg](10, 100), db, nil)

	w.flush(context.Background())

	assert.Equal(t, 0, db.batchCount())
	assert.Equal(t, WriterMetrics{}, w.Stats())
}

func TestWriter_AddReportsFullBatch(t *testing.T) {
	w := NewPointWriter(WriterConfig{BatchSize: 2, FlushInterval: time.Hour}, router.NewGrowableBuffer[router.PointMsg](10, 100), &fakeDB{}, nil)

	assert.False(t, w.add(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: 1}}))
	assert.True(t, w.add(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: 2}}))
}

func TestWriter_TransformErrorSkipsRow(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[int](10, 100)
	errEncode := errors.New("encode failed")
	w := newBatcher("test_writer", WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil,
		func(n int) (int, error) {
			if n%2 == 0 {
				return 0, errEncode
			}
			return n, nil
		},
		func(b *pgx.Batch, n int) { b.Queue("INSERT INTO t VALUES ($1)", n) },
	)

	for i := 1; i <= 4; i++ {
		assert.False(t, w.add(i))
	}
	w.flush(context.Background())

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Skipped)
	assert.Equal(t, int64(2), stats.Inserts)
	require.Len(t, db.queued(), 2)
	assert.Equal(t, []any{1}, db.queued()[0].Arguments)
	assert.Equal(t, []any{3}, db.queued()[1].Arguments)
}

func TestUpdateWriter_SkipsUpdateWithoutID(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[router.UpdateMsg](10, 100)
	w := NewUpdateWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil)

	w.add(router.UpdateMsg{Update: model.TestUpdate{Status: model.StatusRunning}, ReceivedAt: time.Now()})
	w.flush(context.Background())

	assert.Equal(t, int64(1), w.Stats().Skipped)
	assert.Equal(t, 0, db.batchCount())
}

func TestUpdateWriter_StartStop(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[router.UpdateMsg](10, 100)
	w := NewUpdateWriter(WriterConfig{BatchSize: 2, FlushInterval: time.Hour}, input, db, nil)

	require.NoError(t, w.Start(context.Background()))

	for i := 1; i <= 4; i++ {
		input.Send(router.UpdateMsg{Update: model.TestUpdate{ID: "run", Status: model.StatusRunning, Timestamp: int64(i)}})
	}

	require.Eventually(t, func() bool { return w.Stats().Inserts == 4 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.Equal(t, int64(2), w.Stats().Flushes)
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[router.PointMsg](10, 100)
	w := NewPointWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil)

	require.NoError(t, w.Start(context.Background()))
	input.Send(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: 1}})
	input.Send(router.PointMsg{Point: model.TimeSeriesPoint{Timestamp: 2}})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))

	assert.Equal(t, int64(2), w.Stats().Inserts)
	assert.Equal(t, 0, input.Len())
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.Len(t, db.execs, len(schemaStatements))

	db = &fakeDB{err: errors.New("permission denied")}
	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply schema")
}
