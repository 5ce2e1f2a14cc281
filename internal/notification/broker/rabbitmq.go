package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tour_portal_backend/platform/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ publishes messages to a durable topic exchange, using the topic as
// routing key.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logger.Logger
	mu       sync.Mutex
}

func NewRabbitMQ(url, exchange string, log *logger.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Info("rabbitmq publisher connected", "exchange", exchange)
	return &RabbitMQ{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.OccurredAt,
		Type:         msg.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *RabbitMQ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.log.Warn("error closing rabbitmq channel", "error", err)
	}
	return p.conn.Close()
}

var _ Publisher = (*RabbitMQ)(nil)
