package notify

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/redpanda"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
)

func TestLogPublisherCountsEvents(t *testing.T) {
	m := metrics.NewWith(prometheus.NewRegistry())
	p := NewLogPublisher(m, nil)

	for i := 0; i < 3; i++ {
		ev, err := event.New(event.PrescriptionCreated, "rx-1", nil)
		if err != nil {
			t.Fatalf("event.New: %v", err)
		}
		if err := p.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.EventsPublished); got != 3 {
		t.Errorf("events published = %v, want 3", got)
	}
}

func TestLogPublisherNilMetrics(t *testing.T) {
	p := NewLogPublisher(nil, nil)
	ev, _ := event.New(event.PrescriptionStatusChanged, "rx-1", nil)
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestTopicFor(t *testing.T) {
	cases := []struct {
		name  string
		topic string
	}{
		{event.PrescriptionCreated, redpanda.TopicWorkflowEvents},
		{event.PrescriptionStatusChanged, redpanda.TopicWorkflowEvents},
		{event.TransactionCreated, redpanda.TopicBillingEvents},
	}
	for _, tc := range cases {
		if got := TopicFor(event.Event{Name: tc.name}); got != tc.topic {
			t.Errorf("TopicFor(%s) = %s, want %s", tc.name, got, tc.topic)
		}
	}
}
