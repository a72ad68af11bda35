package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the hub's prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Broadcasts  *prometheus.CounterVec
	Dropped     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "labchat",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Live real-time connections.",
		}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labchat",
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Frames fanned out to a group, by envelope type.",
		}, []string{"type"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "labchat",
			Subsystem: "hub",
			Name:      "dropped_deliveries_total",
			Help:      "Deliveries skipped because the peer queue was full or closed.",
		}),
	}
}
