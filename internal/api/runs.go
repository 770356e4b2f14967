package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rickgao/loadtest-dash/internal/model"
)

// Health fetches GET /api/health and returns the backend body unchanged.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "/api/health")
	if err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("get health: invalid json body")
	}
	return body, nil
}

// StartLoadTest starts a fixed-request-count load test.
func (c *Client) StartLoadTest(ctx context.Context, cfg model.LoadTestConfig) (*model.TestResult, error) {
	var result model.TestResult
	if err := c.post(ctx, "/api/load-test", cfg, &result); err != nil {
		return nil, fmt.Errorf("start load test: %w", err)
	}
	return &result, nil
}

// StartStressTest starts a duration-bounded stress test.
func (c *Client) StartStressTest(ctx context.Context, cfg model.StressTestConfig) (*model.TestResult, error) {
	var result model.TestResult
	if err := c.post(ctx, "/api/stress-test", cfg, &result); err != nil {
		return nil, fmt.Errorf("start stress test: %w", err)
	}
	return &result, nil
}

// StartAPITest starts an API test suite run.
func (c *Client) StartAPITest(ctx context.Context, cfg model.APITestConfig) (*model.TestResult, error) {
	var result model.TestResult
	if err := c.post(ctx, "/api/api-test", cfg, &result); err != nil {
		return nil, fmt.Errorf("start api test: %w", err)
	}
	return &result, nil
}
