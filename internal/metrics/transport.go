package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/protocol"
)

const namespace = "loadtest_dash"

var states = []connection.State{
	connection.Disconnected,
	connection.Connecting,
	connection.Connected,
	connection.Unstable,
}

// Transport records WebSocket transport events. It implements
// connection.Observer.
type Transport struct {
	state               *prometheus.GaugeVec
	transitions         *prometheus.CounterVec
	reconnectsScheduled prometheus.Counter
	reconnectDelay      prometheus.Histogram
	reconnectsExhausted prometheus.Counter
	framesReceived      *prometheus.CounterVec
	framesDropped       *prometheus.CounterVec
	framesSent          prometheus.Counter
	queued              prometheus.Counter
	queueEvicted        prometheus.Counter
	heartbeatMisses     prometheus.Counter
}

var _ connection.Observer = (*Transport)(nil)

// NewTransport creates the transport collectors and registers them with reg.
func NewTransport(reg prometheus.Registerer) *Transport {
	t := &Transport{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions.",
		}, []string{"from", "to"}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "reconnects_scheduled_total",
			Help:      "Automatic reconnect attempts scheduled.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnects.",
			Buckets:   prometheus.ExponentialBuckets(1, 1.5, 10),
		}),
		reconnectsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "reconnects_exhausted_total",
			Help:      "Times reconnect attempts ran out and cooldown began.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_received_total",
			Help:      "Inbound frames by message kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames that failed to decode.",
		}, []string{"reason"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the socket.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "queued_total",
			Help:      "Outbound payloads queued while the socket was not open.",
		}),
		queueEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "queue_evicted_total",
			Help:      "Queued payloads dropped because the queue was full.",
		}),
		heartbeatMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "heartbeat_misses_total",
			Help:      "Heartbeat intervals without a liveness proof.",
		}),
	}

	reg.MustRegister(
		t.state,
		t.transitions,
		t.reconnectsScheduled,
		t.reconnectDelay,
		t.reconnectsExhausted,
		t.framesReceived,
		t.framesDropped,
		t.framesSent,
		t.queued,
		t.queueEvicted,
		t.heartbeatMisses,
	)

	t.setState(connection.Disconnected)
	return t
}

func (t *Transport) setState(s connection.State) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		t.state.WithLabelValues(st.String()).Set(v)
	}
}

func (t *Transport) StateChanged(from, to connection.State) {
	t.transitions.WithLabelValues(from.String(), to.String()).Inc()
	t.setState(to)
}

func (t *Transport) ReconnectScheduled(_ int, delay time.Duration) {
	t.reconnectsScheduled.Inc()
	t.reconnectDelay.Observe(delay.Seconds())
}

func (t *Transport) ReconnectsExhausted() {
	t.reconnectsExhausted.Inc()
}

// FrameReceived labels by kind so arbitrary type strings do not grow the
// label set.
func (t *Transport) FrameReceived(typ string) {
	t.framesReceived.WithLabelValues(protocol.KindOf(typ).String()).Inc()
}

func (t *Transport) FrameDropped(reason string) {
	t.framesDropped.WithLabelValues(reason).Inc()
}

func (t *Transport) FrameSent() {
	t.framesSent.Inc()
}

func (t *Transport) Queued(evicted bool) {
	t.queued.Inc()
	if evicted {
		t.queueEvicted.Inc()
	}
}

func (t *Transport) HeartbeatMissed(int) {
	t.heartbeatMisses.Inc()
}
