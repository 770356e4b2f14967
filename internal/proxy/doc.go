// Package proxy serves the dashboard's HTTP surface.
//
// It forwards test-start requests to the backend engine after normalizing
// their configuration, wraps replies in the {success, message, data}
// envelope, and reports dashboard health including the WebSocket transport
// state.
//
// Routes:
//
//	GET  /api/health       backend health, body passed through
//	POST /api/load-test    start a load test
//	POST /api/stress-test  start a stress test
//	POST /api/api-test     start an API test suite
//	GET  /healthz          dashboard health
//	GET  /metrics          Prometheus metrics (when configured)
//
// POST routes are rate limited per client address.
package proxy
