package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/loadtest-dash/internal/router"
)

const idlePoll = 10 * time.Millisecond

// batcher drains a buffer of messages of type M into batched inserts of rows R.
type batcher[M, R any] struct {
	name   string
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the feed
	input *router.GrowableBuffer[M]

	// Database
	db BatchSender

	transform func(M) (R, error)
	queue     func(b *pgx.Batch, r R)

	// Batching
	batch       []R
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

func newBatcher[M, R any](
	name string,
	cfg WriterConfig,
	input *router.GrowableBuffer[M],
	db BatchSender,
	logger *slog.Logger,
	transform func(M) (R, error),
	queue func(*pgx.Batch, R),
) *batcher[M, R] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &batcher[M, R]{
		name:      name,
		cfg:       cfg,
		input:     input,
		db:        db,
		logger:    logger.With("component", name),
		transform: transform,
		queue:     queue,
		batch:     make([]R, 0, cfg.BatchSize),
	}
}

// Start begins consuming messages and writing to the database.
func (w *batcher[M, R]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes what is left in the batch and the
// input buffer using ctx for the final write.
func (w *batcher[M, R]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("writer stopped")
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
	}

	for _, msg := range w.input.DrainTo(0) {
		w.add(msg)
	}
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *batcher[M, R]) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer and accumulates batches.
func (w *batcher[M, R]) consumeLoop() {
	defer w.wg.Done()

	for {
		msgs := w.input.DrainTo(w.cfg.BatchSize)
		if len(msgs) == 0 {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(idlePoll):
				continue
			}
		}

		for _, msg := range msgs {
			if w.add(msg) && w.ctx.Err() == nil {
				w.flush(w.ctx)
			}
		}

		if w.ctx.Err() != nil {
			return
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *batcher[M, R]) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// add transforms a message into the batch and reports whether the batch is full.
func (w *batcher[M, R]) add(msg M) bool {
	row, err := w.transform(msg)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if err != nil {
		w.metrics.Skipped++
		w.logger.Warn("skipping message", "error", err)
		return false
	}
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *batcher[M, R]) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert queues one statement per row and counts rows skipped by
// ON CONFLICT DO NOTHING.
func (w *batcher[M, R]) batchInsert(ctx context.Context, rows []R) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		w.queue(batch, r)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
