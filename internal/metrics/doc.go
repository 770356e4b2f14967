// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state, reconnects and frame rates
//   - Outbound queue depth and evictions
//   - Recorder buffer utilization and overflow counts
//   - Writer inserts, conflicts and errors
package metrics
