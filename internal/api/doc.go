// Package api provides the REST client for the load-testing backend.
//
// Endpoints:
//   - GET  /api/health
//   - POST /api/load-test
//   - POST /api/stress-test
//   - POST /api/api-test
//
// Default base URL: http://localhost:3001
package api
