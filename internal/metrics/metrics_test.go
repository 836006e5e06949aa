package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementTransition("committed")
		m.IncrementAuditFailure()
		m.IncrementNotificationFailure()
		m.IncrementNotificationSent("TaskCreated")
		m.IncrementHandlerFailure("notify")
		m.IncrementBoardReload()
		m.ObserveTransitionLatency(0)
	})
}

func TestCountersAreRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementTransition("committed")
	m.IncrementTransition("committed")
	m.IncrementTransition("denied")
	m.IncrementNotificationFailure()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Transitions.WithLabelValues("committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Transitions.WithLabelValues("denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationFailures))

	count, err := testutil.GatherAndCount(reg, "taskflow_notification_failures_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
