// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"tour_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Tour Lead Domain Events
// =============================================================================

// LeadCreated is published once a tour request has been persisted.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	AgentID     uuid.UUID `json:"agentId"`
	ListingID   uuid.UUID `json:"listingId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadStateChanged is published whenever a confirmation step or a provider
// callback changes the visible status of a lead.
type LeadStateChanged struct {
	BaseEvent
	LeadID           uuid.UUID `json:"leadId"`
	AgentID          uuid.UUID `json:"agentId"`
	Step             string    `json:"step"`
	LifecycleStatus  string    `json:"lifecycleStatus"`
	ResolutionStatus string    `json:"resolutionStatus"`
	BuyerCallStatus  string    `json:"buyerCallStatus"`
	AgentCallStatus  string    `json:"agentCallStatus"`
	VoicemailLeft    bool      `json:"voicemailLeft"`
}

func (e LeadStateChanged) EventName() string { return "leads.state_changed" }

// LeadAssigned is published when the rotation sweep hands a lead to a new agent.
type LeadAssigned struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	ListingID       uuid.UUID `json:"listingId"`
	PreviousAgentID uuid.UUID `json:"previousAgentId"`
	NewAgentID      uuid.UUID `json:"newAgentId"`
	Reason          string    `json:"reason"`
}

func (e LeadAssigned) EventName() string { return "leads.assigned" }

// LeadExpired is published when no eligible agent is left for a stale lead.
type LeadExpired struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	AgentID uuid.UUID `json:"agentId"`
}

func (e LeadExpired) EventName() string { return "leads.expired" }

// AgentMissedLead is published when the assigned agent did not pick up the
// confirmation call, either through a provider callback or the voicemail window.
type AgentMissedLead struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	AgentID         uuid.UUID `json:"agentId"`
	ListingID       uuid.UUID `json:"listingId"`
	AgentCallStatus string    `json:"agentCallStatus"`
}

func (e AgentMissedLead) EventName() string { return "leads.agent_missed" }
