package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFeedConfig(t *testing.T) {
	cfg := DefaultFeedConfig()
	assert.Equal(t, 1000, cfg.PointBufferSize)
	assert.Equal(t, 500, cfg.UpdateBufferSize)
	assert.Equal(t, 100000, cfg.MaxBufferSize)
}

func TestFeed_CopiesTypedPayloads(t *testing.T) {
	reg := NewRegistry(nil)
	feed := NewFeed(DefaultFeedConfig(), nil)
	fixed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	feed.now = func() time.Time { return fixed }
	feed.Attach(reg)

	reg.Dispatch(mustDecode(t, `{"type":"time_series","data":{"timestamp":10,"requests_per_second":5}}`))
	reg.Dispatch(mustDecode(t, `{"type":"time_series_history","data":[{"timestamp":1},{"timestamp":2}]}`))
	reg.Dispatch(mustDecode(t, `{"type":"test_update","data":{"id":"run-1","status":"running"}}`))

	bufs := feed.Buffers()

	points := bufs.Points.DrainTo(0)
	require.Len(t, points, 3)
	assert.Equal(t, int64(10), points[0].Point.Timestamp)
	assert.False(t, points[0].History)
	assert.True(t, points[1].History)
	assert.Equal(t, fixed, points[2].ReceivedAt)

	updates := bufs.Updates.DrainTo(0)
	require.Len(t, updates, 1)
	assert.Equal(t, "run-1", updates[0].Update.ID)
}

func TestFeed_DetachUnsubscribesAndCloses(t *testing.T) {
	reg := NewRegistry(nil)
	feed := NewFeed(DefaultFeedConfig(), nil)
	feed.Attach(reg)
	require.Equal(t, 3, reg.Len())

	feed.Detach()

	assert.Equal(t, 0, reg.Len())
	assert.True(t, feed.Buffers().Points.Closed())
	assert.True(t, feed.Buffers().Updates.Closed())

	reg.Dispatch(mustDecode(t, `{"type":"time_series","data":{}}`))
	assert.Equal(t, 0, feed.Stats().PointBuffer.Count)
}
