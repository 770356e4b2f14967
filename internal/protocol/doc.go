// Package protocol encodes and decodes frames exchanged with the load-testing backend.
//
// Two frame shapes share the socket:
//   - Bare control strings: "ping", "pong" and the "get_time_series" command
//   - JSON envelopes: {"type": "<kind>", "data": <payload>}
//
// Payloads are opaque to the transport. Typed accessors on Message decode them into
// the model package's types on demand.
package protocol
