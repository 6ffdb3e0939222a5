package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters a connection maintains. A nil *Metrics records
// nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	replies        prometheus.Counter
	protocolErrors *prometheus.CounterVec
	events         *prometheus.CounterVec
	forcedFlushes  prometheus.Counter
	pending        prometheus.Gauge
}

// NewMetrics creates the connection metrics and registers them with reg.
// With a nil reg the metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "requests_total",
			Help:      "Requests dispatched, by expected result.",
		}, []string{"kind"}),
		replies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "replies_total",
			Help:      "Replies routed to a waiting request.",
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "protocol_errors_total",
			Help:      "Errors reported by the server, by how they were delivered.",
		}, []string{"delivery"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "events_total",
			Help:      "Events queued, by originating extension.",
		}, []string{"origin"}),
		forcedFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "forced_flushes_total",
			Help:      "Round trips forced by sequence window exhaustion.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "xwire",
			Subsystem: "conn",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}),
	}
}

func (m *Metrics) request(kind string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind).Inc()
}

func (m *Metrics) reply() {
	if m == nil {
		return
	}
	m.replies.Inc()
}

func (m *Metrics) protocolError(delivery string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(delivery).Inc()
}

func (m *Metrics) event(origin string) {
	if m == nil {
		return
	}
	if origin == "" {
		origin = "core"
	}
	m.events.WithLabelValues(origin).Inc()
}

func (m *Metrics) forcedFlush() {
	if m == nil {
		return
	}
	m.forcedFlushes.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
