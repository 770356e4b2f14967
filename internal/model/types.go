package model

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// TestType identifies which kind of run the backend is executing.
type TestType string

const (
	TestTypeLoad   TestType = "Load"
	TestTypeStress TestType = "Stress"
	TestTypeAPI    TestType = "Api"
)

// TestStatus is the lifecycle status reported by the backend.
type TestStatus string

const (
	StatusPending   TestStatus = "pending"
	StatusStarted   TestStatus = "started"
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
	StatusError     TestStatus = "error"
)

// Terminal returns true once the backend will send no further updates for the run.
func (s TestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// -----------------------------------------------------------------------------
// Test Configurations
// -----------------------------------------------------------------------------

// LoadTestConfig starts a fixed-count load test.
type LoadTestConfig struct {
	TargetURL   string `json:"target_url"`
	NumRequests int    `json:"num_requests"`
	Concurrency int    `json:"concurrency"`
}

// StressTestConfig starts a duration-bounded stress test.
type StressTestConfig struct {
	TargetURL    string `json:"target_url"`
	DurationSecs int    `json:"duration_secs"`
	Concurrency  int    `json:"concurrency"`
}

// APITestConfig runs a suite of API checks against a target.
type APITestConfig struct {
	TargetURL     string `json:"target_url"`
	TestSuitePath string `json:"test_suite_path"`
}

// -----------------------------------------------------------------------------
// Results and Updates
// -----------------------------------------------------------------------------

// TestMetrics is the aggregate metric snapshot for a run.
type TestMetrics struct {
	RequestsCompleted   int64         `json:"requests_completed"`
	TotalRequests       int64         `json:"total_requests"`
	AverageResponseTime float64       `json:"average_response_time"`
	MinResponseTime     float64       `json:"min_response_time"`
	MaxResponseTime     float64       `json:"max_response_time"`
	ErrorRate           float64       `json:"error_rate"`
	RequestsPerSecond   float64       `json:"requests_per_second"`
	StatusCodes         map[int]int64 `json:"status_codes"` // status code → count
}

// TestResult is returned by the backend when a run is accepted or rejected.
type TestResult struct {
	ID        string       `json:"id"`
	TestType  TestType     `json:"test_type"`
	Status    TestStatus   `json:"status"`
	Metrics   *TestMetrics `json:"metrics,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// TestUpdate is a progress report pushed over the real-time channel.
type TestUpdate struct {
	ID        string       `json:"id"`
	TestType  TestType     `json:"test_type"`
	Status    TestStatus   `json:"status"`
	Progress  float64      `json:"progress"` // 0-100
	Metrics   *TestMetrics `json:"metrics,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// TimeSeriesPoint is one sample of the live throughput/latency series.
type TimeSeriesPoint struct {
	Timestamp           int64   `json:"timestamp"`
	RequestsPerSecond   float64 `json:"requests_per_second"`
	AverageResponseTime float64 `json:"average_response_time"`
	ErrorRate           float64 `json:"error_rate"`
	ConcurrentUsers     *int    `json:"concurrentUsers,omitempty"`
}

// -----------------------------------------------------------------------------
// API Envelope
// -----------------------------------------------------------------------------

// APIResponse is the envelope returned by the dashboard's HTTP endpoints.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data,omitempty"`
}

// ChartData is the column-oriented form used by chart widgets.
type ChartData struct {
	Timestamps   []int64   `json:"timestamps"`
	Throughput   []float64 `json:"throughput"`
	ResponseTime []float64 `json:"responseTime"`
	ErrorRate    []float64 `json:"errorRate"`
}

// ToChartData converts points into columns, preserving order.
func ToChartData(points []TimeSeriesPoint) ChartData {
	cd := ChartData{
		Timestamps:   make([]int64, len(points)),
		Throughput:   make([]float64, len(points)),
		ResponseTime: make([]float64, len(points)),
		ErrorRate:    make([]float64, len(points)),
	}
	for i, p := range points {
		cd.Timestamps[i] = p.Timestamp
		cd.Throughput[i] = p.RequestsPerSecond
		cd.ResponseTime[i] = p.AverageResponseTime
		cd.ErrorRate[i] = p.ErrorRate
	}
	return cd
}
