package metrics

import "github.com/prometheus/client_golang/prometheus"

// PositionMetrics holds Prometheus metrics for latest-position tracking.
type PositionMetrics struct {
	Recorded    prometheus.Counter
	Dropped     prometheus.Counter
	StoreErrors *prometheus.CounterVec
	Tracked     prometheus.Gauge
}

// NewPositionMetrics creates and registers position tracking metrics on the given registry.
func NewPositionMetrics(reg prometheus.Registerer) *PositionMetrics {
	m := &PositionMetrics{
		Recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "recorded_total",
			Help:      "Total number of bus positions written to the store.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "dropped_total",
			Help:      "Total number of position updates dropped because the tracker was busy.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "store_errors_total",
			Help:      "Total number of position store failures, by operation.",
		}, []string{"op"}),
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "tracked_buses",
			Help:      "Number of buses with a live position at the last listing.",
		}),
	}

	reg.MustRegister(m.Recorded, m.Dropped, m.StoreErrors, m.Tracked)
	return m
}
