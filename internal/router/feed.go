package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/loadtest-dash/internal/model"
)

// FeedBuffers provides access to output buffers for writers.
type FeedBuffers struct {
	Points  *GrowableBuffer[PointMsg]
	Updates *GrowableBuffer[UpdateMsg]
}

// FeedStats contains feed buffer statistics.
type FeedStats struct {
	PointBuffer  BufferStats
	UpdateBuffer BufferStats
}

// Feed copies typed payloads from a Registry into writer buffers.
type Feed struct {
	cfg    FeedConfig
	logger *slog.Logger
	now    func() time.Time

	pointBuf  *GrowableBuffer[PointMsg]
	updateBuf *GrowableBuffer[UpdateMsg]

	mu     sync.Mutex
	unsubs []func()
}

// NewFeed creates a Feed. Call Attach to start receiving.
func NewFeed(cfg FeedConfig, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		pointBuf:  NewGrowableBuffer[PointMsg](cfg.PointBufferSize, cfg.MaxBufferSize),
		updateBuf: NewGrowableBuffer[UpdateMsg](cfg.UpdateBufferSize, cfg.MaxBufferSize),
	}
}

// Attach subscribes the feed to time_series, time_series_history and
// test_update messages on reg.
func (f *Feed) Attach(reg *Registry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unsubs = append(f.unsubs,
		reg.SubscribeTimeSeries(func(p model.TimeSeriesPoint) {
			f.pointBuf.Send(PointMsg{Point: p, ReceivedAt: f.now()})
		}),
		reg.SubscribeTimeSeriesHistory(func(pts []model.TimeSeriesPoint) {
			now := f.now()
			for _, p := range pts {
				f.pointBuf.Send(PointMsg{Point: p, History: true, ReceivedAt: now})
			}
		}),
		reg.SubscribeTestUpdates(func(u model.TestUpdate) {
			f.updateBuf.Send(UpdateMsg{Update: u, ReceivedAt: f.now()})
		}),
	)

	f.logger.Info("recorder feed attached",
		"point_buffer", f.cfg.PointBufferSize,
		"update_buffer", f.cfg.UpdateBufferSize,
		"max_buffer", f.cfg.MaxBufferSize,
	)
}

// Detach removes the feed's subscriptions and closes its buffers.
func (f *Feed) Detach() {
	f.mu.Lock()
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	f.pointBuf.Close()
	f.updateBuf.Close()
}

// Buffers returns output buffers for writers.
func (f *Feed) Buffers() FeedBuffers {
	return FeedBuffers{
		Points:  f.pointBuf,
		Updates: f.updateBuf,
	}
}

// Stats returns current buffer statistics.
func (f *Feed) Stats() FeedStats {
	return FeedStats{
		PointBuffer:  f.pointBuf.Stats(),
		UpdateBuffer: f.updateBuf.Stats(),
	}
}
