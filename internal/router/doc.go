// Package router delivers decoded inbound messages to subscribers.
//
// The Registry keeps one subscriber list per known message kind plus generic
// lists keyed by raw type string, so kinds the transport does not special-case
// can still be consumed. Lists are copy-on-write: subscribing or unsubscribing
// from inside a callback takes effect on the next delivery.
//
// Feed bridges the Registry to the recorder by copying typed payloads into
// growable buffers that batch writers drain.
package router
