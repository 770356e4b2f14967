// Package database provides connection pool management for TimescaleDB.
//
// The dashboard records live time-series samples and test progress updates
// to a single TimescaleDB instance when the recorder is enabled.
package database
