package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tour_portal_backend/internal/callprovider"
	"tour_portal_backend/internal/directory"
	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads"
	"tour_portal_backend/internal/notification"
	"tour_portal_backend/internal/notification/broker"
	"tour_portal_backend/internal/scheduler"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/db"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

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

	agentDirectory := directory.New(pool)

	// Worker-side wiring: the module's HTTP routes are never mounted here.
	leadsModule, err := leads.NewModule(pool, leads.Deps{
		Directory: agentDirectory,
		Provider:  provider,
		Scheduler: stepScheduler,
		EventBus:  eventBus,
	}, validator.New(), cfg, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	notificationModule := notification.New(publisher, topics, provider, agentDirectory, leadsModule.Repository(), log)
	notificationModule.RegisterHandlers(eventBus)

	worker, err := scheduler.NewWorker(cfg, leadsModule.Orchestrator(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	recoveryInterval := getDurationEnv("CONFIRMATION_RECOVERY_INTERVAL", time.Minute)
	recoveryGrace := getDurationEnv("CONFIRMATION_RECOVERY_GRACE", 5*time.Minute)
	recovery := scheduler.NewConfirmationRecovery(
		leadsModule.Repository(),
		leadsModule.Orchestrator(),
		log,
		recoveryInterval,
		cfg.GetAgentCallDelay(),
		recoveryGrace,
	).WithRotatedLeads(cfg.GetRotationRestartConfirmation())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		leadsModule.Sweeper().Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		recovery.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
	}
	eventBus.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
