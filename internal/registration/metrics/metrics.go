package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration workflow.
type Metrics struct {
	Staged               *prometheus.CounterVec
	VerificationAttempts *prometheus.CounterVec
	Decisions            *prometheus.CounterVec
	StoreConflicts       *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
}

// New registers the registration metrics with the default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		Staged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_registrations_staged_total",
			Help: "Stage calls by outcome (created, resumed, pending)",
		}, []string{"outcome"}),
		VerificationAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_verification_attempts_total",
			Help: "Email verification attempts by outcome",
		}, []string{"outcome"}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_review_decisions_total",
			Help: "Reviewer decisions by action, including idempotent repeats",
		}, []string{"action", "repeat"}),
		StoreConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_session_store_conflicts_total",
			Help: "Optimistic write conflicts on the session store by operation",
		}, []string{"operation"}),
		NotificationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_registration_notification_failures_total",
			Help: "Notifications that were not delivered, by template",
		}, []string{"template"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboard_registration_operation_duration_seconds",
			Help:    "Duration of registration operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncStaged(outcome string) {
	m.Staged.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncVerification(outcome string) {
	m.VerificationAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDecision(action string, repeat bool) {
	r := "false"
	if repeat {
		r = "true"
	}
	m.Decisions.WithLabelValues(action, r).Inc()
}

func (m *Metrics) IncStoreConflict(operation string) {
	m.StoreConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncNotificationFailure(template string) {
	m.NotificationFailures.WithLabelValues(template).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
