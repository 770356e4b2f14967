// Package mock generates realistic test telemetry and serves an offline
// stand-in for the load-testing backend.
//
// The generators produce trending time-series samples per test type and
// the matching aggregate metrics. Server exposes the backend's REST
// endpoints and a WebSocket feed that answers ping/pong and
// get_time_series and streams time_series and test_update frames for each
// simulated run.
package mock
