package broker

import (
	"fmt"

	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"
)

// NewPublisher returns redis alone, or redis fanned out with RabbitMQ when a
// RabbitMQ URL is configured. The returned close func releases RabbitMQ only.
func NewPublisher(cfg config.BrokerConfig, redis *Redis, log *logger.Logger) (Publisher, func() error, error) {
	if cfg.GetRabbitMQURL() == "" {
		log.Info("RABBITMQ_URL not configured; notifications use redis pub/sub only")
		return redis, func() error { return nil }, nil
	}

	rabbit, err := NewRabbitMQ(cfg.GetRabbitMQURL(), cfg.GetRabbitMQExchange(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return Fanout{redis, rabbit}, rabbit.Close, nil
}
