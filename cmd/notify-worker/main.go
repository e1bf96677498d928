// Package main provides the notify worker entry point: it consumes workflow
// events off the broker and dispatches notifications through a bounded worker
// pool, deduplicating redeliveries with the Postgres inbox.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/redpanda"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
	"github.com/carepoint/pharmacy-core/pkg/idempotency"
	"github.com/carepoint/pharmacy-core/pkg/workerpool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	brokers := []string{"localhost:9092"}
	if b := os.Getenv("KAFKA_BROKERS"); b != "" {
		brokers = strings.Split(b, ",")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	admin, err := redpanda.NewAdmin(brokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(context.Background()); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	admin.Close()

	m := metrics.New()

	inbox := idempotency.NewInbox(pool, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()

	dispatcher := &dispatcher{logger: logger}
	workers, err := workerpool.New(workerpool.DefaultConfig(), dispatcher.dispatch, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workers.Start()

	// Drain pool results so the channel never fills.
	go func() {
		for range workers.Results() {
		}
	}()

	handler := func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		var ev event.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("malformed event, skipping",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			// Committing past a poison message beats re-reading it forever.
			return nil
		}
		m.EventsConsumed.Inc()

		key := idempotency.GenerateKey(msg.Topic, msg.Partition, msg.Offset, ev.ID)
		err := inbox.Process(ctx, key, "notify", func(ctx context.Context) error {
			return workers.Submit(&workerpool.Task{
				ID:      ev.ID,
				Payload: ev,
				Context: ctx,
			})
		})
		if errors.Is(err, idempotency.ErrDuplicateMessage) {
			logger.Debug("duplicate event skipped", zap.String("event_id", ev.ID))
			return nil
		}
		return err
	}

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = brokers
	consumer, err := redpanda.NewConsumer(consumerCfg, handler, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()
	logger.Info("notify worker started", zap.Strings("brokers", brokers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	consumer.Stop()
	workers.Stop()
	inbox.Stop()
	logger.Info("notify worker stopped")
}

// dispatcher turns workflow events into notifications. The demo delivery
// channel is the log; a real deployment would plug in email or SMS here.
type dispatcher struct {
	logger *zap.Logger
}

func (d *dispatcher) dispatch(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	ev, ok := task.Payload.(event.Event)
	if !ok {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: fmt.Errorf("unexpected payload %T", task.Payload)}
	}

	switch ev.Name {
	case event.PrescriptionCreated:
		d.logger.Info("notify: prescription created", zap.String("prescription_id", ev.AggregateID))
	case event.PrescriptionStatusChanged:
		var p event.StatusChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
		}
		d.logger.Info("notify: prescription status changed",
			zap.String("prescription_id", p.PrescriptionID),
			zap.String("from", p.From),
			zap.String("to", p.To))
	case event.TransactionCreated:
		var p event.TransactionCreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
		}
		d.logger.Info("notify: transaction created",
			zap.String("invoice", p.InvoiceNumber),
			zap.String("total", p.Total))
	default:
		d.logger.Warn("notify: unknown event", zap.String("event", ev.Name))
	}

	return &workerpool.Result{TaskID: task.ID, Success: true}
}
