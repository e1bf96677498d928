// Package main provides the outbox relay entry point: it ships staged
// workflow events from Postgres to the broker.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/infrastructure/postgres"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/redpanda"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
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
	logger.Info("connected to database")

	admin, err := redpanda.NewAdmin(brokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(context.Background()); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = brokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to broker", zap.Strings("brokers", brokers))

	m := metrics.New()

	outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), logger)
	outbox.Start()

	// Housekeeping: surface the pending gauge, park exhausted entries on the
	// dead letter topic and prune delivered rows.
	houseCtx, houseCancel := context.WithCancel(context.Background())
	go housekeeping(houseCtx, outbox, m, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	houseCancel()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

func housekeeping(ctx context.Context, outbox *postgres.Outbox, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := outbox.GetStats(ctx)
			if err == nil {
				m.OutboxPending.Set(float64(stats.Pending))
			}

			moved, err := outbox.MoveToDeadLetter(ctx, redpanda.TopicDeadLetter)
			if err != nil {
				logger.Error("dead letter sweep failed", zap.Error(err))
			} else if moved > 0 {
				logger.Warn("entries moved to dead letter", zap.Int64("count", moved))
			}

			if _, err := outbox.CleanupProcessed(ctx, 24*time.Hour); err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
			}
		}
	}
}
