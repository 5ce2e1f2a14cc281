// Package broker fans lead notifications out to other processes and
// downstream consumers. Redis pub/sub carries them to the API's SSE relay;
// RabbitMQ, when configured, carries them to durable consumers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one notification on a topic.
type Message struct {
	Topic      string          `json:"topic"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewMessage encodes data as the message body.
func NewMessage(topic, msgType string, data any, occurredAt time.Time) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Type: msgType, Data: raw, OccurredAt: occurredAt.UTC()}, nil
}

// Publisher delivers a message to its topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Topics builds topic names under a shared prefix.
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "tours"
	}
	return Topics{prefix: prefix}
}

// Lead is the topic watched by everyone following one lead.
func (t Topics) Lead(id uuid.UUID) string {
	return t.prefix + ".leads." + id.String()
}

// Agent is the topic of one agent's personal feed.
func (t Topics) Agent(id uuid.UUID) string {
	return t.prefix + ".agents." + id.String()
}

// Pattern matches every topic under the prefix.
func (t Topics) Pattern() string {
	return t.prefix + ".*"
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Publisher = Fanout(nil)
