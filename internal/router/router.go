package router

import (
	"log/slog"
	"sync"

	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/protocol"
)

// Registry routes decoded messages to per-kind and per-type subscribers.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	byKind map[protocol.Kind][]subscriber
	byType map[string][]subscriber
	stats  RegistryStats
}

type subscriber struct {
	id uint64
	fn Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		byKind: make(map[protocol.Kind][]subscriber),
		byType: make(map[string][]subscriber),
	}
}

// Subscribe registers fn for every message of a known kind.
// The returned func removes the subscription and is safe to call more than once.
func (r *Registry) Subscribe(kind protocol.Kind, fn Handler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.byKind[kind] = appendSubscriber(r.byKind[kind], subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byKind[kind] = removeSubscriber(r.byKind[kind], id)
	}
}

// SubscribeType registers fn for messages whose type string equals typ and
// that the protocol package does not recognise. Known kinds go only to
// Subscribe handlers.
func (r *Registry) SubscribeType(typ string, fn Handler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.byType[typ] = appendSubscriber(r.byType[typ], subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byType[typ] = removeSubscriber(r.byType[typ], id)
	}
}

// Dispatch delivers msg in insertion order to the kind subscribers of a known
// kind, or to the type subscribers of an unknown one.
func (r *Registry) Dispatch(msg protocol.Message) {
	r.mu.Lock()
	r.stats.Received++
	subs := r.byType[msg.Type]
	if msg.Kind != protocol.KindUnknown {
		subs = r.byKind[msg.Kind]
	}
	if len(subs) == 0 {
		r.stats.Unhandled++
	}
	r.mu.Unlock()

	// Slices are never mutated in place, so iterating the snapshot is safe.
	for _, s := range subs {
		r.invoke(s, msg)
	}
}

// Stats returns current dispatch counters.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Len returns the total number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, subs := range r.byKind {
		n += len(subs)
	}
	for _, subs := range r.byType {
		n += len(subs)
	}
	return n
}

func (r *Registry) invoke(s subscriber, msg protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panicked",
				"type", msg.Type,
				"panic", rec,
			)
			r.mu.Lock()
			r.stats.Panics++
			r.mu.Unlock()
		}
	}()

	s.fn(msg)

	r.mu.Lock()
	r.stats.Delivered++
	r.mu.Unlock()
}

func (r *Registry) payloadError(msg protocol.Message, err error) {
	r.logger.Warn("failed to decode payload", "type", msg.Type, "error", err)
	r.mu.Lock()
	r.stats.PayloadErrors++
	r.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Typed helpers
// -----------------------------------------------------------------------------

// SubscribeTestUpdates registers fn for decoded test_update payloads.
func (r *Registry) SubscribeTestUpdates(fn func(model.TestUpdate)) func() {
	return r.Subscribe(protocol.KindTestUpdate, func(msg protocol.Message) {
		u, err := msg.TestUpdate()
		if err != nil {
			r.payloadError(msg, err)
			return
		}
		fn(u)
	})
}

// SubscribeTimeSeries registers fn for decoded time_series payloads.
func (r *Registry) SubscribeTimeSeries(fn func(model.TimeSeriesPoint)) func() {
	return r.Subscribe(protocol.KindTimeSeriesPoint, func(msg protocol.Message) {
		p, err := msg.TimeSeriesPoint()
		if err != nil {
			r.payloadError(msg, err)
			return
		}
		fn(p)
	})
}

// SubscribeTimeSeriesHistory registers fn for decoded time_series_history payloads.
func (r *Registry) SubscribeTimeSeriesHistory(fn func([]model.TimeSeriesPoint)) func() {
	return r.Subscribe(protocol.KindTimeSeriesHistory, func(msg protocol.Message) {
		pts, err := msg.TimeSeriesHistory()
		if err != nil {
			r.payloadError(msg, err)
			return
		}
		fn(pts)
	})
}

// SubscribeMetrics registers fn for decoded metrics_update payloads.
func (r *Registry) SubscribeMetrics(fn func(model.TestMetrics)) func() {
	return r.Subscribe(protocol.KindMetricsUpdate, func(msg protocol.Message) {
		m, err := msg.Metrics()
		if err != nil {
			r.payloadError(msg, err)
			return
		}
		fn(m)
	})
}

func appendSubscriber(subs []subscriber, s subscriber) []subscriber {
	out := make([]subscriber, len(subs), len(subs)+1)
	copy(out, subs)
	return append(out, s)
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	for i, s := range subs {
		if s.id != id {
			continue
		}
		out := make([]subscriber, 0, len(subs)-1)
		out = append(out, subs[:i]...)
		return append(out, subs[i+1:]...)
	}
	return subs
}
