// Package notify delivers workflow events to downstream listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/redpanda"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
	"github.com/carepoint/pharmacy-core/pkg/circuitbreaker"
)

// LogPublisher writes events to the log. It backs single-process deployments
// that run without a broker.
type LogPublisher struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewLogPublisher creates a publisher. The metrics parameter may be nil.
func NewLogPublisher(m *metrics.Metrics, logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{metrics: m, logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, e event.Event) error {
	p.logger.Info("workflow event",
		zap.String("event_id", e.ID),
		zap.String("event", e.Name),
		zap.String("aggregate_id", e.AggregateID),
		zap.Time("occurred_at", e.OccurredAt))
	if p.metrics != nil {
		p.metrics.EventsPublished.Inc()
	}
	return nil
}

// TopicFor routes events to their broker topic by name prefix.
func TopicFor(e event.Event) string {
	if strings.HasPrefix(e.Name, "transaction.") {
		return redpanda.TopicBillingEvents
	}
	return redpanda.TopicWorkflowEvents
}

// BrokerPublisher sends events straight to the broker through a circuit
// breaker. The outbox path is preferred when Postgres is in play; this covers
// in-memory deployments that still want streaming.
type BrokerPublisher struct {
	producer *redpanda.Producer
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewBrokerPublisher creates a publisher. The metrics parameter may be nil.
func NewBrokerPublisher(producer *redpanda.Producer, m *metrics.Metrics, logger *zap.Logger) (*BrokerPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := circuitbreaker.DefaultConfig("event-broker")
	if m != nil {
		cfg.OnStateChange = func(name string, state circuitbreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(state))
		}
		m.CircuitBreakerState.WithLabelValues(cfg.Name).Set(breakerStateValue(circuitbreaker.StateClosed))
	}
	breaker, err := circuitbreaker.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create breaker: %w", err)
	}
	return &BrokerPublisher{
		producer: producer,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Publish sends one event, keyed by aggregate ID.
func (p *BrokerPublisher) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := TopicFor(e)
	_, err = p.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.Publish(ctx, topic, e.AggregateID, payload)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Name, err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.Inc()
	}
	return nil
}

// BreakerState exposes the breaker state for health reporting.
func (p *BrokerPublisher) BreakerState() circuitbreaker.State {
	return p.breaker.GetState()
}

// breakerStateValue encodes a breaker state for the gauge:
// 0=closed, 1=open, 2=half-open.
func breakerStateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateOpen:
		return 1
	case circuitbreaker.StateHalfOpen:
		return 2
	}
	return 0
}
