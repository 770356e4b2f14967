// Package connection implements the real-time transport to the load-testing backend.
//
// The Manager:
//   - Keeps exactly one WebSocket to the backend at a time
//   - Drives its lifecycle through a pure Transition function (Disconnected,
//     Connecting, Connected, Unstable)
//   - Detects silent death with application-level "ping"/"pong" heartbeats
//   - Reconnects with bounded exponential backoff and a cooldown reset
//   - Queues outbound payloads while offline and replays held subscription
//     announcements on every connect
//   - Routes decoded inbound messages to a router.Registry
//
// All Manager state lives behind one mutex. Socket, dial and timer callbacks
// carry a generation number so events from a superseded socket are dropped.
// Subscriber and state-observer callbacks never run with the mutex held.
package connection
