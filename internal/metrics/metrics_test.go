package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/poller"
	"github.com/rickgao/loadtest-dash/internal/router"
	"github.com/rickgao/loadtest-dash/internal/writer"
)

// sample returns the value of the named metric whose labels include want.
// Histograms report their sample count.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestTransport_StateGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := NewTransport(reg)

	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_state", map[string]string{"state": "disconnected"}))

	tr.StateChanged(connection.Disconnected, connection.Connecting)
	tr.StateChanged(connection.Connecting, connection.Connected)

	assert.Equal(t, 0.0, sample(t, reg, "loadtest_dash_ws_state", map[string]string{"state": "disconnected"}))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_state", map[string]string{"state": "connected"}))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_state_transitions_total",
		map[string]string{"from": "connecting", "to": "connected"}))
}

func TestTransport_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := NewTransport(reg)

	tr.ReconnectScheduled(1, time.Second)
	tr.ReconnectScheduled(2, 1500*time.Millisecond)
	tr.ReconnectsExhausted()
	tr.FrameReceived("time_series")
	tr.FrameReceived("custom_event")
	tr.FrameReceived("other_custom")
	tr.FrameDropped("malformed")
	tr.FrameSent()
	tr.Queued(false)
	tr.Queued(true)
	tr.HeartbeatMissed(1)

	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_ws_reconnects_scheduled_total", nil))
	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_ws_reconnect_delay_seconds", nil))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_reconnects_exhausted_total", nil))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_frames_received_total", map[string]string{"kind": "time_series"}))
	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_ws_frames_received_total", map[string]string{"kind": "unknown"}))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_frames_dropped_total", map[string]string{"reason": "malformed"}))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_frames_sent_total", nil))
	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_ws_queued_total", nil))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_queue_evicted_total", nil))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_ws_heartbeat_misses_total", nil))
}

func TestRegisterBufferAndWriter(t *testing.T) {
	reg := prometheus.NewRegistry()

	buf := router.NewGrowableBuffer[int](4, 4)
	for i := 0; i < 6; i++ {
		buf.Send(i)
	}
	RegisterBuffer(reg, "points", buf.Stats)

	wm := writer.WriterMetrics{Inserts: 10, Conflicts: 2, Errors: 1, Flushes: 3, Skipped: 4}
	RegisterWriter(reg, "points", func() writer.WriterMetrics { return wm })

	RegisterQueue(reg, func() connection.Stats { return connection.Stats{QueueLen: 7} })

	assert.Equal(t, 4.0, sample(t, reg, "loadtest_dash_buffer_items", map[string]string{"buffer": "points"}))
	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_buffer_dropped_total", map[string]string{"buffer": "points"}))
	assert.Equal(t, 10.0, sample(t, reg, "loadtest_dash_writer_inserts_total", map[string]string{"writer": "points"}))
	assert.Equal(t, 2.0, sample(t, reg, "loadtest_dash_writer_conflicts_total", map[string]string{"writer": "points"}))
	assert.Equal(t, 4.0, sample(t, reg, "loadtest_dash_writer_skipped_total", map[string]string{"writer": "points"}))
	assert.Equal(t, 7.0, sample(t, reg, "loadtest_dash_ws_queue_length", nil))

	wm.Inserts = 12
	assert.Equal(t, 12.0, sample(t, reg, "loadtest_dash_writer_inserts_total", map[string]string{"writer": "points"}))
}

func TestRegisterBackendHealth(t *testing.T) {
	reg := prometheus.NewRegistry()

	st := poller.Status{Up: true, Checks: 5, Failures: 1}
	RegisterBackendHealth(reg, func() poller.Status { return st })

	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_backend_up", nil))
	assert.Equal(t, 5.0, sample(t, reg, "loadtest_dash_backend_health_checks_total", nil))
	assert.Equal(t, 1.0, sample(t, reg, "loadtest_dash_backend_health_check_failures_total", nil))

	st.Up = false
	assert.Equal(t, 0.0, sample(t, reg, "loadtest_dash_backend_up", nil))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := NewTransport(reg)
	tr.FrameSent()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "loadtest_dash_ws_frames_sent_total 1")
}
