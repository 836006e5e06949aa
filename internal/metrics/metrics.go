package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow engine.
// Every method is safe to call on a nil receiver.
type Metrics struct {
	// Transition outcomes by result
	Transitions *prometheus.CounterVec

	TransitionLatency prometheus.Histogram

	// Swallowed side-effect failures
	AuditWriteFailures   prometheus.Counter
	NotificationFailures prometheus.Counter
	EventHandlerFailures *prometheus.CounterVec

	NotificationsSent *prometheus.CounterVec
	BoardReloads      prometheus.Counter
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_transitions_total",
			Help: "Total status transition requests by result",
		}, []string{"result"}), // result: "committed", "noop", "denied", "invalid", "not_found", "store_failure"

		TransitionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskflow_transition_duration_seconds",
			Help:    "Duration of status transitions including side effects",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_audit_write_failures_total",
			Help: "History entries that could not be written after a committed change",
		}),

		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_notification_failures_total",
			Help: "Chat notifications that failed to deliver",
		}),

		EventHandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_event_handler_failures_total",
			Help: "Event handler errors and panics by handler",
		}, []string{"handler"}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_notifications_sent_total",
			Help: "Chat notifications delivered by event kind",
		}, []string{"kind"}),

		BoardReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_board_reloads_total",
			Help: "Board projections reloaded from the store after missed events",
		}),
	}
}

// IncrementTransition records a transition outcome.
func (m *Metrics) IncrementTransition(result string) {
	if m != nil {
		m.Transitions.WithLabelValues(result).Inc()
	}
}

// ObserveTransitionLatency records the total transition duration.
func (m *Metrics) ObserveTransitionLatency(d time.Duration) {
	if m != nil {
		m.TransitionLatency.Observe(d.Seconds())
	}
}

// IncrementAuditFailure records a history write that was swallowed.
func (m *Metrics) IncrementAuditFailure() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

// IncrementNotificationFailure records a failed chat delivery.
func (m *Metrics) IncrementNotificationFailure() {
	if m != nil {
		m.NotificationFailures.Inc()
	}
}

// IncrementNotificationSent records a delivered chat message.
func (m *Metrics) IncrementNotificationSent(kind string) {
	if m != nil {
		m.NotificationsSent.WithLabelValues(kind).Inc()
	}
}

// IncrementHandlerFailure records an event handler error or panic.
func (m *Metrics) IncrementHandlerFailure(handler string) {
	if m != nil {
		m.EventHandlerFailures.WithLabelValues(handler).Inc()
	}
}

// IncrementBoardReload records a projection reload.
func (m *Metrics) IncrementBoardReload() {
	if m != nil {
		m.BoardReloads.Inc()
	}
}
