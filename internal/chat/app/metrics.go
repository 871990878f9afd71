package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics gateway counters, every instance owns its registry so tests can build many.
// Store, router and gateway must share one instance for /metrics to see all of them.
type Metrics struct {
	Registry *prometheus.Registry

	Connections      prometheus.Gauge
	JoinedRooms      prometheus.Gauge
	MessagesAppended *prometheus.CounterVec
	Deliveries       prometheus.Counter
	Drops            prometheus.Counter
	WSErrors         *prometheus.CounterVec
	OfflineNotices   *prometheus.CounterVec
}

// append outcome label values
const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// discardMetrics shared by components built with nil metrics, never registered or exposed
var discardMetrics = newCollectors()

// metricsOrDiscard nil drops every observation
func metricsOrDiscard(m *Metrics) *Metrics {
	if m == nil {
		return discardMetrics
	}
	return m
}

// NewMetrics register chat collectors plus go / process collectors
func NewMetrics() *Metrics {
	m := newCollectors()
	m.Registry = prometheus.NewRegistry()
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.JoinedRooms,
		m.MessagesAppended,
		m.Deliveries,
		m.Drops,
		m.WSErrors,
		m.OfflineNotices,
	)
	return m
}

func newCollectors() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "ws_connections",
			Help:      "Live authenticated websocket connections.",
		}),
		JoinedRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "room_memberships",
			Help:      "Connection to room memberships on this instance.",
		}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_appended_total",
			Help:      "Append attempts by outcome.",
		}, []string{"outcome"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "broadcast_deliveries_total",
			Help:      "Frames enqueued onto connection outbound queues.",
		}),
		Drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "broadcast_drops_total",
			Help:      "Frames skipped because the outbound queue was full.",
		}),
		WSErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "ws_errors_total",
			Help:      "Error frames sent to clients by code.",
		}, []string{"code"}),
		OfflineNotices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "offline_notices_total",
			Help:      "Offline notices by publish result.",
		}, []string{"result"}),
	}
}
