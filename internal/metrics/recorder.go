package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/poller"
	"github.com/rickgao/loadtest-dash/internal/router"
	"github.com/rickgao/loadtest-dash/internal/writer"
)

// RegisterBuffer exposes a feed buffer's statistics under the given name.
func RegisterBuffer(reg prometheus.Registerer, name string, stats func() router.BufferStats) {
	labels := prometheus.Labels{"buffer": name}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "buffer",
			Name:        "items",
			Help:        "Items waiting in the buffer.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Count) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "buffer",
			Name:        "capacity",
			Help:        "Current buffer capacity.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Capacity) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "buffer",
			Name:        "dropped_total",
			Help:        "Items dropped because the buffer was at its limit.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Dropped) }),
	)
}

// RegisterWriter exposes a writer's counters under the given name.
func RegisterWriter(reg prometheus.Registerer, name string, stats func() writer.WriterMetrics) {
	labels := prometheus.Labels{"writer": name}
	counter := func(metric, help string, value func(writer.WriterMetrics) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "writer",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(stats())) })
	}
	reg.MustRegister(
		counter("inserts_total", "Rows inserted.", func(m writer.WriterMetrics) int64 { return m.Inserts }),
		counter("conflicts_total", "Rows skipped as duplicates.", func(m writer.WriterMetrics) int64 { return m.Conflicts }),
		counter("errors_total", "Failed batch inserts.", func(m writer.WriterMetrics) int64 { return m.Errors }),
		counter("flushes_total", "Successful batch flushes.", func(m writer.WriterMetrics) int64 { return m.Flushes }),
		counter("skipped_total", "Messages skipped before batching.", func(m writer.WriterMetrics) int64 { return m.Skipped }),
	)
}

// RegisterQueue exposes the Manager's outbound queue depth.
func RegisterQueue(reg prometheus.Registerer, stats func() connection.Stats) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "queue_length",
		Help:      "Outbound payloads waiting for the socket to open.",
	}, func() float64 { return float64(stats().QueueLen) }))
}

// RegisterBackendHealth exposes the health poller's view of the backend.
func RegisterBackendHealth(reg prometheus.Registerer, status func() poller.Status) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "up",
			Help:      "1 when the last backend health check succeeded.",
		}, func() float64 {
			if status().Up {
				return 1
			}
			return 0
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "health_checks_total",
			Help:      "Backend health checks performed.",
		}, func() float64 { return float64(status().Checks) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "health_check_failures_total",
			Help:      "Backend health checks that failed.",
		}, func() float64 { return float64(status().Failures) }),
	)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
