// Package version exposes build metadata stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/loadtest-dash/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/loadtest-dash/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/dashd
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "unknown"
)

// String returns "version (commit, goversion)".
func String() string {
	return Version + " (" + Commit + ", " + runtime.Version() + ")"
}

// UserAgent is sent by outbound HTTP and WebSocket clients.
func UserAgent() string {
	return "loadtest-dash/" + Version
}
