package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/curalink/clinic-comms/internal/platform/config"
	"github.com/curalink/clinic-comms/internal/platform/database"
	"github.com/curalink/clinic-comms/internal/platform/logger"
	"github.com/curalink/clinic-comms/internal/platform/messagebroker"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/adapters/provider"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/app"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository/postgres"
	transporthttp "github.com/curalink/clinic-comms/internal/bulk_comm_service/transport/http"
)

const (
	serviceName     = "bulk-comm-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...")

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		// Events are best-effort; the queue still works without the broker.
		log.Warn("Failed to connect to NATS; batch events disabled", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()
		log.Info("NATS connection initialized")
	}

	// Repositories
	batchStore := postgres.NewPgBatchStore(dbPool, cfg.EnqueueChunkSize, log)
	itemRepo := postgres.NewPgQueueItemRepository(dbPool, log)
	skippedRepo := postgres.NewPgSkippedRecipientRepository(dbPool, log)
	recipientRepo := postgres.NewPgRecipientRepository(dbPool, log)
	orgRepo := postgres.NewPgOrganizationRepository(dbPool, log)
	templateRepo := postgres.NewPgTemplateRepository(dbPool, log)

	// Application components
	var publisher app.EventPublisher
	if natsClient != nil {
		publisher = natsClient
	}

	personalizer := app.NewPersonalizer(log)
	rateLimiter := app.NewRateLimiter(itemRepo, app.RateLimiterConfig{
		SMSHourlyLimit:   cfg.SMSHourlyLimit,
		SMSDailyLimit:    cfg.SMSDailyLimit,
		EmailHourlyLimit: cfg.EmailHourlyLimit,
		EmailDailyLimit:  cfg.EmailDailyLimit,
	}, log)

	channelProvider := provider.NewMockProvider(log, 0)

	batchManager := app.NewBatchManager(
		batchStore, recipientRepo, orgRepo, templateRepo,
		personalizer, publisher,
		app.BatchManagerConfig{DefaultPriority: domain.Priority(cfg.DefaultPriority)},
		log,
	)
	statsAggregator := app.NewStatsAggregator(itemRepo, batchStore, publisher, log)
	queueProcessor := app.NewQueueProcessor(
		itemRepo, batchStore, rateLimiter, channelProvider, statsAggregator,
		app.ProcessorConfig{
			MaxRetries:  cfg.MaxRetries,
			SendDelay:   cfg.SendDelay,
			SendTimeout: cfg.SendTimeout,
		},
		log,
	)
	lifecycle := app.NewLifecycle(
		batchStore, itemRepo, skippedRepo, recipientRepo, orgRepo,
		personalizer, publisher,
		app.LifecycleConfig{
			SMSPerMinuteLimit:   cfg.SMSPerMinuteLimit,
			EmailPerMinuteLimit: cfg.EmailPerMinuteLimit,
		},
		log,
	)

	// HTTP server
	validate := validator.New()
	handler := transporthttp.NewCommHandler(batchManager, queueProcessor, lifecycle, cfg.WorkerBatchSize, log, validate)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(transporthttp.PrometheusMetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	// Background queue processing loop
	g.Go(func() error {
		log.Info("Starting queue processing worker...", "poll_interval", cfg.WorkerPollInterval, "batch_size", cfg.WorkerBatchSize)
		ticker := time.NewTicker(cfg.WorkerPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				result, err := queueProcessor.ProcessQueue(groupCtx, cfg.WorkerBatchSize)
				if err != nil {
					// Transient DB trouble should not kill the worker; the
					// next tick retries.
					log.ErrorContext(groupCtx, "Queue processing cycle failed", "error", err)
					continue
				}
				if result.Processed > 0 || result.Failed > 0 {
					log.InfoContext(groupCtx, "Queue processing cycle finished",
						"processed", result.Processed, "failed", result.Failed)
				}
			case <-groupCtx.Done():
				log.InfoContext(groupCtx, "Queue processing worker stopping", "error", groupCtx.Err())
				return groupCtx.Err()
			}
		}
	})

	// HTTP server
	g.Go(func() error {
		log.Info("Starting HTTP server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	// Graceful HTTP shutdown on group cancellation
	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating HTTP server graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
			return err
		}
		log.Info("HTTP server has been shut down.")
		return nil
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case <-groupCtx.Done():
		log.Error("A critical component failed, initiating shutdown", "error", groupCtx.Err())
	}

	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Error during graceful shutdown of components", "error", err)
	}

	log.Info("Service shutdown complete.")
}
