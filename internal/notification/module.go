// Package notification turns lead domain events into broker messages and
// agent SMS, and streams those messages to connected clients.
// Domain modules publish events; they never talk to the broker or the
// SMS provider for notifications directly.
package notification

import (
	"context"
	"errors"
	"fmt"

	"tour_portal_backend/internal/events"
	apphttp "tour_portal_backend/internal/http"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/internal/notification/broker"
	"tour_portal_backend/internal/notification/sse"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Directory resolves the people and listings named in lead events.
type Directory interface {
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
	GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error)
}

// LeadReader loads a lead to check who may follow it.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// Subscriber delivers broker messages published by any process.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(broker.Message)) error
}

// Module handles lead notification events.
type Module struct {
	publisher broker.Publisher
	topics    broker.Topics
	provider  ports.CallProvider
	directory Directory
	leads     LeadReader
	sse       *sse.Service
	log       *logger.Logger
}

// New creates the notification module.
func New(publisher broker.Publisher, topics broker.Topics, provider ports.CallProvider, directory Directory, leads LeadReader, log *logger.Logger) *Module {
	return &Module{
		publisher: publisher,
		topics:    topics,
		provider:  provider,
		directory: directory,
		leads:     leads,
		log:       log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// SetSSE enables the stream routes and the broker relay.
func (m *Module) SetSSE(s *sse.Service) { m.sse = s }

// RegisterRoutes registers the notification streams.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.sse == nil {
		return
	}
	ctx.Protected.GET("/agents/me/stream", m.sse.Handler(m.agentTopic))
	ctx.Protected.GET("/leads/:id/stream", m.sse.Handler(m.leadTopic))
}

// Relay feeds every broker message into the local SSE clients until ctx is done.
func (m *Module) Relay(ctx context.Context, sub Subscriber) error {
	if m.sse == nil {
		return errors.New("sse not configured")
	}
	return sub.Subscribe(ctx, m.sse.Deliver)
}

func (m *Module) agentTopic(c *gin.Context) (string, error) {
	identity := httpkit.GetIdentity(c)
	if !identity.IsAuthenticated() {
		return "", apperr.Unauthorized("unauthorized")
	}
	return m.topics.Agent(identity.UserID()), nil
}

// leadTopic lets the assigned agent, the buyer and admins follow a lead.
func (m *Module) leadTopic(c *gin.Context) (string, error) {
	identity := httpkit.GetIdentity(c)
	if !identity.IsAuthenticated() {
		return "", apperr.Unauthorized("unauthorized")
	}

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", apperr.BadRequest("invalid lead id")
	}
	lead, err := m.leads.Get(c.Request.Context(), leadID)
	if err != nil {
		return "", err
	}

	userID := identity.UserID()
	if userID != lead.AgentID && userID != lead.BuyerID && !identity.HasRole(httpkit.RoleAdmin) {
		return "", apperr.Forbidden("not allowed to follow this lead")
	}
	return m.topics.Lead(lead.ID), nil
}

// RegisterHandlers subscribes to the lead events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadStateChanged{}.EventName(), m)
	bus.Subscribe(events.LeadAssigned{}.EventName(), m)
	bus.Subscribe(events.LeadExpired{}.EventName(), m)
	bus.Subscribe(events.AgentMissedLead{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		return m.publish(ctx, e, m.topics.Lead(e.LeadID), m.topics.Agent(e.AgentID))
	case events.LeadStateChanged:
		return m.publish(ctx, e, m.topics.Lead(e.LeadID), m.topics.Agent(e.AgentID))
	case events.LeadAssigned:
		return m.handleLeadAssigned(ctx, e)
	case events.LeadExpired:
		return m.publish(ctx, e, m.topics.Lead(e.LeadID), m.topics.Agent(e.AgentID))
	case events.AgentMissedLead:
		return m.handleAgentMissedLead(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadAssigned(ctx context.Context, e events.LeadAssigned) error {
	publishErr := m.publish(ctx, e,
		m.topics.Lead(e.LeadID),
		m.topics.Agent(e.PreviousAgentID),
		m.topics.Agent(e.NewAgentID),
	)
	smsErr := m.textAgent(ctx, e.LeadID, e.NewAgentID, e.ListingID, ports.ScriptAgentNewLead)
	return errors.Join(publishErr, smsErr)
}

func (m *Module) handleAgentMissedLead(ctx context.Context, e events.AgentMissedLead) error {
	publishErr := m.publish(ctx, e, m.topics.Agent(e.AgentID))
	smsErr := m.textAgent(ctx, e.LeadID, e.AgentID, e.ListingID, ports.ScriptAgentMissedLead)
	return errors.Join(publishErr, smsErr)
}

// publish sends event to each topic; topics of the nil agent are skipped.
func (m *Module) publish(ctx context.Context, event events.Event, topics ...string) error {
	var errs []error
	for _, topic := range topics {
		if topic == m.topics.Agent(uuid.Nil) {
			continue
		}
		msg, err := broker.NewMessage(topic, event.EventName(), event, event.OccurredAt())
		if err != nil {
			return fmt.Errorf("encode %s: %w", event.EventName(), err)
		}
		if err := m.publisher.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// textAgent sends script to the agent's phone. Agents without a phone are skipped.
func (m *Module) textAgent(ctx context.Context, leadID, agentID, listingID uuid.UUID, script ports.CallScript) error {
	log := m.log.WithContext(ctx)

	agent, err := m.directory.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load agent %s: %w", agentID, err)
	}
	if agent.Phone == nil || *agent.Phone == "" {
		log.Info("agent has no phone, skipping sms", "leadId", leadID, "agentId", agentID, "script", script)
		return nil
	}

	vars := map[string]string{"agentName": agent.Name}
	if listingID != uuid.Nil {
		if listing, err := m.directory.GetListing(ctx, listingID); err == nil {
			vars["address"] = listing.Address
		} else {
			log.Warn("listing lookup failed, sending sms without address", "listingId", listingID, "error", err)
		}
	}

	if _, err := m.provider.SendSMS(ctx, ports.SMSRequest{
		LeadID:  leadID,
		ToPhone: *agent.Phone,
		Script:  script,
		Vars:    vars,
	}); err != nil {
		return fmt.Errorf("send %s sms: %w", script, err)
	}
	return nil
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
