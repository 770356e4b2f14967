// Package poller periodically checks the backend REST API.
//
// The Health Poller:
//   - Calls GET /api/health on a fixed interval (default 30s)
//   - Tracks up/down, consecutive failures and the last error
//   - Logs transitions and notifies a StatusHandler after every check
package poller
