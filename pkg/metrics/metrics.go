package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solitude"

// Eviction reasons
const (
	ReasonStale        = "stale"
	ReasonWriteFailure = "write_failure"
	ReasonDisconnect   = "disconnect"
	ReasonLeave        = "leave"
	ReasonReplaced     = "replaced"
)

// Metrics holds the presence collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsActive     prometheus.Gauge
	StreamsOpen        prometheus.Gauge
	OccupancyState     prometheus.Gauge
	Broadcasts         *prometheus.CounterVec
	Evictions          *prometheus.CounterVec
	Heartbeats         *prometheus.CounterVec
	TransitionsDropped prometheus.Counter
	SinkErrors         *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the registry",
		}),
		StreamsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_open",
			Help:      "Sessions currently holding a push channel",
		}),
		OccupancyState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupancy_state",
			Help:      "0 vacant, 1 occupied, 2 contended",
		}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast passes by event type",
		}, []string{"type"}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Sessions removed from the registry by reason",
		}, []string{"reason"}),
		Heartbeats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat calls by result",
		}, []string{"result"}),
		TransitionsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_dropped_total",
			Help:      "Occupancy transitions dropped because the recorder queue was full",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed transition deliveries by sink",
		}, []string{"sink"}),
	}
}

// Occupancy sets the registry gauges after a membership change
func (m *Metrics) Occupancy(sessions, streams int, level float64) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(sessions))
	m.StreamsOpen.Set(float64(streams))
	m.OccupancyState.Set(level)
}

func (m *Metrics) Broadcast(eventType string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Evicted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Heartbeat(result string) {
	if m == nil {
		return
	}
	m.Heartbeats.WithLabelValues(result).Inc()
}

func (m *Metrics) TransitionDropped() {
	if m == nil {
		return
	}
	m.TransitionsDropped.Inc()
}

func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Handler exposes the metrics gathered by g at /metrics
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
