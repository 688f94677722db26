package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the broadcast hub and its
// WebSocket connections.
type HubMetrics struct {
	ActiveConnections    prometheus.Gauge
	ActiveGroups         prometheus.Gauge
	MessagesPublished    prometheus.Counter
	DeliveriesEnqueued   prometheus.Counter
	OverflowDrops        prometheus.Counter
	DecodeErrors         prometheus.Counter
	TransportErrors      *prometheus.CounterVec
	SendDuration         prometheus.Histogram
	PingFailures         prometheus.Counter
	IdleDisconnects      prometheus.Counter
	InboundRateLimited   prometheus.Counter
	ConnectionRejections *prometheus.CounterVec
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of connections currently registered with the hub.",
		}),
		ActiveGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_groups",
			Help:      "Number of groups with at least one member.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to a group.",
		}),
		DeliveriesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_enqueued_total",
			Help:      "Total number of messages placed on a connection outbox.",
		}),
		OverflowDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "overflow_drops_total",
			Help:      "Total number of queued messages discarded because an outbox was full.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "decode_errors_total",
			Help:      "Total number of inbound payloads rejected as unstructured.",
		}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "transport_errors_total",
			Help:      "Total number of transport failures, by operation.",
		}, []string{"op"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Time spent writing a single message to a WebSocket.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of failed WebSocket pings.",
		}),
		IdleDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "idle_disconnects_total",
			Help:      "Total number of connections closed for inactivity.",
		}),
		InboundRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "inbound_rate_limited_total",
			Help:      "Total number of inbound frames dropped by the per-connection rate limit.",
		}),
		ConnectionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connection_rejections_total",
			Help:      "Total number of rejected WebSocket upgrades, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ActiveGroups,
		m.MessagesPublished,
		m.DeliveriesEnqueued,
		m.OverflowDrops,
		m.DecodeErrors,
		m.TransportErrors,
		m.SendDuration,
		m.PingFailures,
		m.IdleDisconnects,
		m.InboundRateLimited,
		m.ConnectionRejections,
	)
	return m
}
