package connection

import "time"

// HeartbeatAction tells the Manager what to do on a heartbeat tick.
type HeartbeatAction int

const (
	// HeartbeatProbe means send "ping" and keep waiting.
	HeartbeatProbe HeartbeatAction = iota
	// HeartbeatDead means the miss threshold was reached.
	HeartbeatDead
)

// Heartbeat tracks liveness proofs for the current socket.
// Not safe for concurrent use; the Manager guards it with its mutex.
type Heartbeat struct {
	timeout   time.Duration
	threshold int

	lastProof time.Time
	misses    int
}

// NewHeartbeat creates a Heartbeat. A threshold below 1 is treated as 1.
func NewHeartbeat(timeout time.Duration, threshold int) Heartbeat {
	if threshold < 1 {
		threshold = 1
	}
	return Heartbeat{timeout: timeout, threshold: threshold}
}

// Reset records a liveness proof at now and clears the miss counter.
func (h *Heartbeat) Reset(now time.Time) {
	h.lastProof = now
	h.misses = 0
}

// Tick evaluates one probe interval ending at now.
func (h *Heartbeat) Tick(now time.Time) HeartbeatAction {
	if now.Sub(h.lastProof) > h.timeout {
		h.misses++
		if h.misses >= h.threshold {
			return HeartbeatDead
		}
	}
	return HeartbeatProbe
}

// Misses returns the consecutive miss count.
func (h *Heartbeat) Misses() int {
	return h.misses
}

// LastProof returns the time of the last liveness proof.
func (h *Heartbeat) LastProof() time.Time {
	return h.lastProof
}
