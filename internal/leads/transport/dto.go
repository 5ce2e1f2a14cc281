package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateLeadRequest struct {
	BuyerID     uuid.UUID  `json:"buyerId" validate:"required"`
	AgentID     uuid.UUID  `json:"agentId" validate:"required"`
	ListingID   uuid.UUID  `json:"listingId" validate:"required"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
}

type CreateLeadResponse struct {
	LeadID uuid.UUID `json:"leadId"`
}

type LeadResponse struct {
	ID               uuid.UUID  `json:"id"`
	BuyerID          uuid.UUID  `json:"buyerId"`
	AgentID          uuid.UUID  `json:"agentId"`
	ListingID        uuid.UUID  `json:"listingId"`
	ServiceArea      string     `json:"serviceArea"`
	RequestedAt      time.Time  `json:"requestedAt"`
	LifecycleStatus  string     `json:"lifecycleStatus"`
	ExpiryStatus     string     `json:"expiryStatus"`
	ResolutionStatus string     `json:"resolutionStatus"`
	BuyerCallStatus  string     `json:"buyerCallStatus"`
	AgentCallStatus  string     `json:"agentCallStatus"`
	VoicemailLeft    bool       `json:"voicemailLeft"`
	BuyerCallAt      *time.Time `json:"buyerCallAt,omitempty"`
	AgentCallAt      *time.Time `json:"agentCallAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// LeadStatusResponse is the compact status view polled by buyer and agent apps.
type LeadStatusResponse struct {
	LeadID           uuid.UUID `json:"leadId"`
	AgentID          uuid.UUID `json:"agentId"`
	LifecycleStatus  string    `json:"lifecycleStatus"`
	ExpiryStatus     string    `json:"expiryStatus"`
	ResolutionStatus string    `json:"resolutionStatus"`
	BuyerCallStatus  string    `json:"buyerCallStatus"`
	AgentCallStatus  string    `json:"agentCallStatus"`
	VoicemailLeft    bool      `json:"voicemailLeft"`
	TimeLeftSeconds  int64     `json:"timeLeftSeconds"`
}

type RejectionResponse struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agentId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

type RejectionListResponse struct {
	Items []RejectionResponse `json:"items"`
	Total int                 `json:"total"`
}

type DeclineLeadResponse struct {
	LeadID  uuid.UUID `json:"leadId"`
	Outcome string    `json:"outcome"`
}

type StaleLeadsRequest struct {
	OlderThanMinutes int `form:"olderThanMinutes" validate:"omitempty,min=1,max=10080"`
	Limit            int `form:"limit" validate:"omitempty,min=1,max=500"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
	Total int            `json:"total"`
}
