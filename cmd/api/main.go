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

	"tour_portal_backend/internal/callprovider"
	"tour_portal_backend/internal/directory"
	"tour_portal_backend/internal/events"
	apphttp "tour_portal_backend/internal/http"
	"tour_portal_backend/internal/http/router"
	"tour_portal_backend/internal/leads"
	"tour_portal_backend/internal/notification"
	"tour_portal_backend/internal/notification/broker"
	"tour_portal_backend/internal/notification/sse"
	"tour_portal_backend/internal/scheduler"
	"tour_portal_backend/internal/webhook"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/db"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	provider, err := callprovider.NewClient(cfg, log)
	if err != nil {
		log.Error("failed to initialize call provider", "error", err)
		panic("failed to initialize call provider: " + err.Error())
	}

	stepScheduler, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize step scheduler", "error", err)
		panic("failed to initialize step scheduler: " + err.Error())
	}
	defer func() { _ = stepScheduler.Close() }()

	topics := broker.NewTopics(cfg.GetBrokerChannelPrefix())
	redisBroker, err := broker.NewRedisFromURL(cfg.GetRedisURL(), topics, log)
	if err != nil {
		log.Error("failed to initialize notification broker", "error", err)
		panic("failed to initialize notification broker: " + err.Error())
	}
	defer func() { _ = redisBroker.Close() }()

	publisher, closePublisher, err := broker.NewPublisher(cfg, redisBroker, log)
	if err != nil {
		log.Error("failed to initialize notification publisher", "error", err)
		panic("failed to initialize notification publisher: " + err.Error())
	}
	defer func() { _ = closePublisher() }()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	agentDirectory := directory.New(pool)

	leadsModule, err := leads.NewModule(pool, leads.Deps{
		Directory: agentDirectory,
		Provider:  provider,
		Scheduler: stepScheduler,
		EventBus:  eventBus,
	}, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	// Notification module subscribes to domain events and serves the streams
	streams := sse.New(log)
	notificationModule := notification.New(publisher, topics, provider, agentDirectory, leadsModule.Repository(), log)
	notificationModule.SetSSE(streams)
	notificationModule.RegisterHandlers(eventBus)

	// Messages from the scheduler process reach local streams through redis
	go func() {
		if err := notificationModule.Relay(ctx, redisBroker); err != nil {
			log.Error("notification relay stopped", "error", err)
		}
	}()

	webhookModule := webhook.NewModule(leadsModule.Ingestor(), cfg.GetCallWebhookSecret(), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Modules: []apphttp.Module{
			leadsModule,
			notificationModule,
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}

	// Streams never finish on their own; close them before draining requests.
	streams.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	eventBus.Wait()
	log.Info("server stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
