package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestUpdateDecodesBackendJSON(t *testing.T) {
	raw := `{
		"id": "run-1",
		"test_type": "Load",
		"status": "running",
		"progress": 42.5,
		"metrics": {
			"requests_completed": 425,
			"total_requests": 1000,
			"average_response_time": 71.2,
			"min_response_time": 35.6,
			"max_response_time": 142.4,
			"error_rate": 0.5,
			"requests_per_second": 20.1,
			"status_codes": {"200": 420, "500": 5}
		},
		"timestamp": 1705321845000
	}`

	var u TestUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))

	assert.Equal(t, "run-1", u.ID)
	assert.Equal(t, TestTypeLoad, u.TestType)
	assert.Equal(t, StatusRunning, u.Status)
	assert.InDelta(t, 42.5, u.Progress, 1e-9)
	require.NotNil(t, u.Metrics)
	assert.Equal(t, int64(420), u.Metrics.StatusCodes[200])
	assert.Equal(t, int64(5), u.Metrics.StatusCodes[500])
	assert.Equal(t, int64(1705321845000), u.Timestamp)
}

func TestTestStatusTerminal(t *testing.T) {
	tests := []struct {
		status TestStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusStarted, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

func TestToChartData(t *testing.T) {
	points := []TimeSeriesPoint{
		{Timestamp: 1000, RequestsPerSecond: 10, AverageResponseTime: 50, ErrorRate: 0.1},
		{Timestamp: 2000, RequestsPerSecond: 12, AverageResponseTime: 55, ErrorRate: 0.2},
	}

	cd := ToChartData(points)

	assert.Equal(t, []int64{1000, 2000}, cd.Timestamps)
	assert.Equal(t, []float64{10, 12}, cd.Throughput)
	assert.Equal(t, []float64{50, 55}, cd.ResponseTime)
	assert.Equal(t, []float64{0.1, 0.2}, cd.ErrorRate)
}

func TestToChartDataEmpty(t *testing.T) {
	cd := ToChartData(nil)
	assert.Empty(t, cd.Timestamps)
	assert.NotNil(t, cd.Timestamps)
}
