package proxy

import (
	"math"
	"strconv"
	"strings"

	"github.com/rickgao/loadtest-dash/internal/model"
)

// Defaults applied to missing, zero or non-numeric configuration values.
const (
	DefaultNumRequests   = 1000
	DefaultConcurrency   = 10
	DefaultDurationSecs  = 60
	DefaultTestSuitePath = "/tests/default.json"
)

// rawConfig is the loosely typed request body sent by the dashboard UI.
// Numeric fields may arrive as numbers or numeric strings.
type rawConfig map[string]any

func (c rawConfig) str(key string) string {
	s, _ := c[key].(string)
	return strings.TrimSpace(s)
}

// intOr converts the value at key to an int, returning def when the value is
// absent, zero or not a number.
func (c rawConfig) intOr(key string, def int) int {
	var f float64
	switch v := c[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return def
		}
		f = parsed
	case bool:
		if v {
			f = 1
		}
	default:
		return def
	}
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return int(f)
}

func normalizeLoad(c rawConfig) model.LoadTestConfig {
	return model.LoadTestConfig{
		TargetURL:   c.str("target_url"),
		NumRequests: c.intOr("num_requests", DefaultNumRequests),
		Concurrency: c.intOr("concurrency", DefaultConcurrency),
	}
}

func normalizeStress(c rawConfig) model.StressTestConfig {
	return model.StressTestConfig{
		TargetURL:    c.str("target_url"),
		DurationSecs: c.intOr("duration_secs", DefaultDurationSecs),
		Concurrency:  c.intOr("concurrency", DefaultConcurrency),
	}
}

func normalizeAPI(c rawConfig) model.APITestConfig {
	path := c.str("test_suite_path")
	if path == "" {
		path = DefaultTestSuitePath
	}
	return model.APITestConfig{
		TargetURL:     c.str("target_url"),
		TestSuitePath: path,
	}
}
