package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/protocol"
	"github.com/rickgao/loadtest-dash/internal/router"
)

func TestFormatCodes(t *testing.T) {
	assert.Equal(t, "200:980,404:10,500:10", formatCodes(map[int]int64{500: 10, 200: 980, 404: 10}))
	assert.Equal(t, "", formatCodes(nil))
}

func TestPrinter_Update(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false, true)

	p.update(router.UpdateMsg{Update: model.TestUpdate{
		ID:       "run-1",
		TestType: model.TestTypeLoad,
		Status:   model.StatusRunning,
		Progress: 50,
		Metrics: &model.TestMetrics{
			RequestsCompleted: 500,
			TotalRequests:     1000,
			StatusCodes:       map[int]int64{200: 490, 404: 5},
		},
	}})

	assert.Contains(t, buf.String(), "[UPDATE] id=run-1 type=Load status=running progress=50% done=500/1000 codes=200:490,404:5")
}

func TestPrinter_PointAndHistory(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false, true)

	pt := model.TimeSeriesPoint{Timestamp: time.Now().UnixMilli(), RequestsPerSecond: 12.5, AverageResponseTime: 80, ErrorRate: 0.25}
	p.point(router.PointMsg{Point: pt})
	p.point(router.PointMsg{Point: pt, History: true})

	out := buf.String()
	assert.Contains(t, out, "[POINT]")
	assert.Contains(t, out, "[HISTORY]")
	assert.Contains(t, out, "rps=12.5 avg_rt=80.0ms err=0.25%")
}

func TestPrinter_VerboseJSON(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true, true)

	p.metrics(model.TestMetrics{RequestsCompleted: 3, TotalRequests: 10})

	out := buf.String()
	start := bytes.IndexByte([]byte(out), '{')
	require.GreaterOrEqual(t, start, 0)

	var m model.TestMetrics
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &m))
	assert.Equal(t, int64(3), m.RequestsCompleted)
}

func TestPrinter_StateAndRaw(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false, true)

	p.state(connection.Unstable)
	p.raw(protocol.Message{Type: "custom_event", Data: json.RawMessage(`{"a":1}`)})

	out := buf.String()
	assert.Contains(t, out, "[STATE] UNSTABLE")
	assert.Contains(t, out, `[CUSTOM_EVENT] {"a":1}`)
}

func TestTail_StopsWhenBufferClosed(t *testing.T) {
	buf := router.NewGrowableBuffer[int](4, 8)
	buf.Send(1)
	buf.Send(2)
	buf.Close()

	var got []int
	done := make(chan struct{})
	go func() {
		tail(t.Context(), buf, func(v int) { got = append(got, v) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not return after close")
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "url", "verbose", "no-color", "type", "announce", "log-level", "stats"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
