package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"tour_portal_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Redis publishes messages on Redis channels named after their topic.
type Redis struct {
	client *redis.Client
	topics Topics
	log    *logger.Logger
}

// NewRedisFromURL connects to the Redis instance named by redisURL.
func NewRedisFromURL(redisURL string, topics Topics, log *logger.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opt), topics, log), nil
}

func NewRedis(client *redis.Client, topics Topics, log *logger.Logger) *Redis {
	return &Redis{client: client, topics: topics, log: log}
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, msg.Topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe delivers every message under the topic prefix to fn until ctx is
// done. Malformed payloads are logged and skipped.
func (r *Redis) Subscribe(ctx context.Context, fn func(Message)) error {
	sub := r.client.PSubscribe(ctx, r.topics.Pattern())
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.log.Info("notification subscriber started", "pattern", r.topics.Pattern())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.log.Warn("dropping malformed notification", "channel", raw.Channel, "error", err)
				continue
			}
			if msg.Topic == "" {
				msg.Topic = raw.Channel
			}
			fn(msg)
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Publisher = (*Redis)(nil)
