package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	stepMaxRetry  = 5
	stepRetention = 24 * time.Hour
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues delayed confirmation steps.
type Client struct {
	client enqueuer
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Schedule enqueues the step to run at task.RunAt. The task id is derived from
// step, lead and agent, and completed tasks are retained for a day, so arming
// the same step twice enqueues it once.
func (c *Client) Schedule(ctx context.Context, task ports.StepTask) error {
	asynqTask, err := NewStepTask(task)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, asynqTask,
		asynq.ProcessAt(task.RunAt),
		asynq.Queue(c.queue),
		asynq.TaskID(TaskIDFor(task)),
		asynq.MaxRetry(stepMaxRetry),
		asynq.Retention(stepRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s for lead %s: %w", task.Step, task.LeadID, err)
	}
	return nil
}

var _ ports.Scheduler = (*Client)(nil)

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	tlsConfig := opt.TLSConfig
	if tlsConfig != nil {
		tlsConfig = tlsConfig.Clone()
	}
	if tlsInsecure {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.InsecureSkipVerify = true
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
