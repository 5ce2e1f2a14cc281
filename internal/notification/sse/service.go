// Package sse streams lead notifications to connected browsers.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tour_portal_backend/internal/notification/broker"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const clientBuffer = 32

// Event is one message pushed to a stream.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type client struct {
	topic  string
	events chan Event
}

// Service tracks stream clients by topic.
type Service struct {
	mu      sync.RWMutex
	clients map[string][]*client
	closed  bool
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[string][]*client),
		log:     log,
	}
}

func (s *Service) addClient(topic string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	c := &client{topic: topic, events: make(chan Event, clientBuffer)}
	s.clients[topic] = append(s.clients[topic], c)
	return c, true
}

// removeClient closes c's channel only if it is still registered; Close may
// have closed it already.
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.topic]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.topic] = append(clients[:i], clients[i+1:]...)
			if len(s.clients[c.topic]) == 0 {
				delete(s.clients, c.topic)
			}
			close(c.events)
			return
		}
	}
}

// Publish sends event to every client on topic and returns how many received it.
// Slow clients whose buffer is full miss the event.
func (s *Service) Publish(topic string, event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, c := range s.clients[topic] {
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full, dropping event", "topic", topic, "type", event.Type)
		}
	}
	return delivered
}

// Deliver relays a broker message to local clients.
func (s *Service) Deliver(msg broker.Message) {
	s.Publish(msg.Topic, Event{
		Type:       msg.Type,
		Topic:      msg.Topic,
		Data:       msg.Data,
		OccurredAt: msg.OccurredAt,
	})
}

// Clients reports how many clients follow topic.
func (s *Service) Clients(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[topic])
}

// Handler streams the topic chosen by resolve. resolve writes nothing; its
// error is rendered through httpkit.HandleError.
func (s *Service) Handler(resolve func(*gin.Context) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic, err := resolve(c)
		if httpkit.HandleError(c, err) {
			return
		}

		cl, ok := s.addClient(topic)
		if !ok {
			httpkit.Error(c, http.StatusServiceUnavailable, "stream closed", nil)
			return
		}
		defer s.removeClient(cl)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		c.SSEvent("connected", gin.H{"topic": topic})
		c.Writer.Flush()

		log := s.log.WithContext(c.Request.Context())
		log.Debug("sse client connected", "topic", topic)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				log.Debug("sse client disconnected", "topic", topic)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(event.Type, string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[string][]*client)
}
