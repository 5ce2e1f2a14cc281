package domain

import (
	"time"

	"github.com/google/uuid"
)

// RejectionReasonTimedOut is recorded when the sweep rotates a lead away from
// an agent who did not respond in time.
const RejectionReasonTimedOut = "No response/timed out"

// Lead is a buyer's tour request for a listing and its confirmation state.
type Lead struct {
	ID               uuid.UUID
	BuyerID          uuid.UUID
	AgentID          uuid.UUID
	ListingID        uuid.UUID
	ServiceArea      string
	RequestedAt      time.Time
	LifecycleStatus  LifecycleStatus
	ExpiryStatus     ExpiryStatus
	ResolutionStatus ResolutionStatus
	BuyerCallStatus  CallStatus
	AgentCallStatus  CallStatus
	VoicemailLeft    bool
	BuyerCallRef     *string
	AgentCallRef     *string
	BuyerCallAt      *time.Time
	AgentCallAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewLead returns a freshly requested lead with every status at its initial value.
func NewLead(buyerID, agentID, listingID uuid.UUID, serviceArea string, requestedAt time.Time) Lead {
	return Lead{
		ID:               uuid.New(),
		BuyerID:          buyerID,
		AgentID:          agentID,
		ListingID:        listingID,
		ServiceArea:      serviceArea,
		RequestedAt:      requestedAt,
		LifecycleStatus:  LifecycleNewLead,
		ExpiryStatus:     ExpiryActive,
		ResolutionStatus: ResolutionPending,
		BuyerCallStatus:  CallPending,
		AgentCallStatus:  CallPending,
	}
}

// IsResolved reports whether an agent has claimed the lead.
func (l Lead) IsResolved() bool {
	return l.ResolutionStatus == ResolutionResolved
}

// IsActive reports whether the lead can still be rotated.
func (l Lead) IsActive() bool {
	return l.ExpiryStatus == ExpiryActive
}

// RejectionRecord is an append-only entry naming an agent that had the lead
// and lost it.
type RejectionRecord struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	AgentID   uuid.UUID
	Reason    string
	CreatedAt time.Time
}

// Agent is the read-only directory view of a listing agent.
type Agent struct {
	ID          uuid.UUID
	Name        string
	Phone       *string
	ServiceArea string
}

// Buyer is the read-only directory view of a buyer.
type Buyer struct {
	ID    uuid.UUID
	Name  string
	Phone *string
}

// Listing is the read-only directory view of a listing.
type Listing struct {
	ID          uuid.UUID
	AgentID     uuid.UUID
	Address     string
	ServiceArea string
}

// Status is the externally visible summary of a lead.
type Status struct {
	LeadID           uuid.UUID
	AgentID          uuid.UUID
	LifecycleStatus  LifecycleStatus
	ExpiryStatus     ExpiryStatus
	ResolutionStatus ResolutionStatus
	BuyerCallStatus  CallStatus
	AgentCallStatus  CallStatus
	VoicemailLeft    bool
	TimeLeft         time.Duration
}

// StatusAt summarizes the lead as seen at now.
func (l Lead) StatusAt(now time.Time, expiryWindow time.Duration) Status {
	return Status{
		LeadID:           l.ID,
		AgentID:          l.AgentID,
		LifecycleStatus:  l.LifecycleStatus,
		ExpiryStatus:     l.ExpiryStatus,
		ResolutionStatus: l.ResolutionStatus,
		BuyerCallStatus:  l.BuyerCallStatus,
		AgentCallStatus:  l.AgentCallStatus,
		VoicemailLeft:    l.VoicemailLeft,
		TimeLeft:         TimeLeft(l.RequestedAt, expiryWindow, now),
	}
}

// TimeLeft returns the remaining part of the expiry window, never negative.
func TimeLeft(requestedAt time.Time, window time.Duration, now time.Time) time.Duration {
	left := requestedAt.Add(window).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// AgentCallDueAt is the earliest moment the agent call may be placed.
// It is never before requestedAt + delay.
func AgentCallDueAt(requestedAt, now time.Time, delay time.Duration) time.Time {
	base := now
	if requestedAt.After(now) {
		base = requestedAt
	}
	return base.Add(delay)
}
