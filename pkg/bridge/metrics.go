package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bridge's counters. A nil *Metrics records nothing.
type Metrics struct {
	sessions *prometheus.CounterVec
	active   prometheus.Gauge
	bytes    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "bridge",
			Name:      "sessions_total",
			Help:      "Websocket sessions, by how they were admitted or refused.",
		}, []string{"result"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "xwire",
			Subsystem: "bridge",
			Name:      "active_sessions",
			Help:      "Sessions currently relaying to a display.",
		}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xwire",
			Subsystem: "bridge",
			Name:      "bytes_total",
			Help:      "Bytes relayed, by direction.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) session(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}

func (m *Metrics) activeDelta(delta float64) {
	if m == nil {
		return
	}
	m.active.Add(delta)
}

func (m *Metrics) relayed(direction string, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
