package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tour_portal_backend/internal/leads/confirmation"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const tooEarlyRetryDelay = 15 * time.Second

// StepHandler runs the confirmation steps.
type StepHandler interface {
	HandleBuyerConfirmDue(ctx context.Context, leadID uuid.UUID) error
	HandleAgentCallDue(ctx context.Context, leadID, agentID uuid.UUID) error
	HandleVoicemailDue(ctx context.Context, leadID, agentID uuid.UUID) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, steps StepHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		RetryDelayFunc: retryDelay,
		IsFailure: func(err error) bool {
			return !errors.Is(err, confirmation.ErrTooEarly)
		},
		Logger: newAsynqLogger(log),
	})

	return &Worker{
		server: server,
		mux:    newMux(steps, log),
		log:    log,
	}, nil
}

func newMux(steps StepHandler, log *logger.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskBuyerConfirm, func(ctx context.Context, task *asynq.Task) error {
		leadID, _, err := ParseStepPayload(task)
		if err != nil {
			return skipMalformed(log, task, err)
		}
		return steps.HandleBuyerConfirmDue(ctx, leadID)
	})
	mux.HandleFunc(TaskAgentCall, func(ctx context.Context, task *asynq.Task) error {
		leadID, agentID, err := ParseStepPayload(task)
		if err != nil {
			return skipMalformed(log, task, err)
		}
		return steps.HandleAgentCallDue(ctx, leadID, agentID)
	})
	mux.HandleFunc(TaskVoicemailCheck, func(ctx context.Context, task *asynq.Task) error {
		leadID, agentID, err := ParseStepPayload(task)
		if err != nil {
			return skipMalformed(log, task, err)
		}
		return steps.HandleVoicemailDue(ctx, leadID, agentID)
	})
	return mux
}

// skipMalformed drops a task whose payload can never be processed.
func skipMalformed(log *logger.Logger, task *asynq.Task, err error) error {
	log.Error("dropping malformed confirmation task", "type", task.Type(), "error", err)
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if errors.Is(err, confirmation.ErrTooEarly) {
		return tooEarlyRetryDelay
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// Run processes tasks until ctx is done, then waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
