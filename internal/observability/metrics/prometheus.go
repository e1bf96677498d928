// Package metrics provides Prometheus metrics for the pharmacy workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	PrescriptionsCreated   prometheus.Counter
	StatusTransitions      *prometheus.CounterVec
	TransitionsRejected    *prometheus.CounterVec
	TransactionsCreated    prometheus.Counter
	RevenueCents           prometheus.Counter
	BillingDuration        prometheus.Histogram
	PrescriptionsInReview  prometheus.Gauge
	EventsPublished        prometheus.Counter
	EventsConsumed         prometheus.Counter
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics against a caller-supplied registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_transitions_total",
			Help: "Prescription status transitions by source and target status",
		}, []string{"from", "to"}),
		TransitionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_transitions_rejected_total",
			Help: "Rejected transition attempts by failure kind",
		}, []string{"kind"}),
		TransactionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_transactions_total",
			Help: "Total billing transactions committed",
		}),
		RevenueCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_revenue_cents_total",
			Help: "Total billed revenue in cents",
		}),
		BillingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_commit_duration_seconds",
			Help:    "Billing commit duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		PrescriptionsInReview: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prescriptions_in_review",
			Help: "Prescriptions currently awaiting pharmacy review",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_events_published_total",
			Help: "Total workflow events published",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_events_consumed_total",
			Help: "Total workflow events consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.PrescriptionsCreated,
		m.StatusTransitions,
		m.TransitionsRejected,
		m.TransactionsCreated,
		m.RevenueCents,
		m.BillingDuration,
		m.PrescriptionsInReview,
		m.EventsPublished,
		m.EventsConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
