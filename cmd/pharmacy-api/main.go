// Package main provides the pharmacy workflow API entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/api/handlers"
	"github.com/carepoint/pharmacy-core/internal/api/middleware"
	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/identity"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/memory"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/postgres"
	"github.com/carepoint/pharmacy-core/internal/notify"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
	"github.com/carepoint/pharmacy-core/internal/observability/tracing"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DatabaseURL  string
	OTLPEndpoint string
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig()

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("pharmacy-api")
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := tracing.Init(ctx, tcfg)
		if err != nil {
			logger.Fatal("tracing init failed", zap.Error(err))
		}
		defer provider.Shutdown(context.Background())
	}

	m := metrics.New()

	var (
		prescriptionRepo prescription.Repository
		catalogRepo      catalog.Repository
		patientRepo      patient.Repository
		transactionRepo  billing.Repository
		publisher        event.Publisher
		directory        *identity.Directory
		ready            func(context.Context) error
	)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		logger.Info("connected to database")

		prescriptionRepo = postgres.NewPrescriptionRepository(pool, logger)
		catalogRepo = postgres.NewCatalogRepository(pool, logger)
		patientRepo = postgres.NewPatientRepository(pool, logger)
		transactionRepo = postgres.NewTransactionRepository(pool, logger)
		// Events go through the outbox; the relay ships them to the broker.
		publisher = postgres.NewOutboxPublisher(pool, notify.TopicFor, m)
		directory = identity.DemoDirectory()
		ready = pool.Ping
	} else {
		logger.Info("no DATABASE_URL, running with the in-memory store")
		store := memory.NewStore()
		dir, err := memory.Seed(store)
		if err != nil {
			logger.Fatal("seed failed", zap.Error(err))
		}
		prescriptionRepo = store.Prescriptions()
		catalogRepo = store.Medicines()
		patientRepo = store.Patients()
		transactionRepo = store.Transactions()
		publisher = notify.NewLogPublisher(m, logger)
		directory = dir
		ready = func(context.Context) error { return nil }
	}

	prescriptionEngine := prescription.NewEngine(prescriptionRepo, catalogRepo, publisher, logger)
	billingEngine := billing.NewEngine(prescriptionRepo, transactionRepo, publisher, logger)

	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionEngine, prescriptionRepo, m, logger)
	billingHandler := handlers.NewBillingHandler(billingEngine, transactionRepo, prescriptionRepo, patientRepo, m, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, logger)
	patientHandler := handlers.NewPatientHandler(patientRepo, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("pharmacy-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorAuth(directory))
		r.Mount("/prescriptions", prescriptionHandler.Routes())
		r.Mount("/billing", billingHandler.Routes())
		r.Mount("/medicines", catalogHandler.Routes())
		r.Mount("/patients", patientHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting pharmacy API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return Config{
		Port:         port,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"pharmacy-api","version":"0.1.0"}`)
}
