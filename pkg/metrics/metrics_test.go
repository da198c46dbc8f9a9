package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Occupancy(2, 1, 2)
	m.Broadcast("status")
	m.Broadcast("status")
	m.Evicted(ReasonStale, 3)
	m.Evicted(ReasonLeave, 0)
	m.Heartbeat("alive")
	m.TransitionDropped()
	m.SinkError("redis")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OccupancyState))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues("status")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Evictions.WithLabelValues(ReasonStale)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Evictions), "no series for a zero eviction")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Heartbeats.WithLabelValues("alive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("redis")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Occupancy(1, 1, 1)
		m.Broadcast("status")
		m.Evicted(ReasonStale, 1)
		m.Heartbeat("alive")
		m.TransitionDropped()
		m.SinkError("postgres")
	})
}
