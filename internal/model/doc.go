// Package model defines the payload types exchanged with the load-testing backend.
//
// The shapes mirror the backend's JSON so they can be decoded straight off the wire:
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Response times: float64 milliseconds
//   - Error rates: float64 percent (0-100)
package model
