// Package metrics exposes signaling server counters to Prometheus.
package metrics

import (
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicemesh"

type Outcome string

const (
	Forwarded Outcome = "forwarded"
	Dropped   Outcome = "dropped"
	Rejected  Outcome = "rejected"
)

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	rooms       prometheus.Gauge
	connections *prometheus.GaugeVec
	envelopes   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with a connected owner.",
		}),
		connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open signaling WebSockets by role.",
		}, []string{"role"}),
		envelopes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Signaling envelopes seen by the router, by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) ConnOpened(role domain.Role) {
	if m != nil {
		m.connections.WithLabelValues(string(role)).Inc()
	}
}

func (m *Metrics) ConnClosed(role domain.Role) {
	if m != nil {
		m.connections.WithLabelValues(string(role)).Dec()
	}
}

func (m *Metrics) Envelope(typ string, outcome Outcome) {
	if m != nil {
		m.envelopes.WithLabelValues(typ, string(outcome)).Inc()
	}
}
