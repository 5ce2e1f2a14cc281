// Package ports defines the interfaces the tour lead engine requires from
// persistence, the agent directory, the call provider and the task scheduler.
// Implementations are wired by the composition root; the engine never imports
// them directly.
package ports

import (
	"context"
	"time"

	"tour_portal_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// LeadReader provides read access to leads and their rejection history.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListRejections(ctx context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error)
	ListActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lead, error)
}

// LeadWriter provides guarded writes. Update applies patch only when the
// stored row satisfies guard and every written status is a valid transition
// from its stored value; otherwise it returns an apperr Conflict and leaves
// the row unchanged.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, error)
	CreateRejection(ctx context.Context, rec domain.RejectionRecord) error
}

// LeadRotator provides the multi-row steps of the rotation sweep.
type LeadRotator interface {
	// ClaimActiveLeadsOlderThan leases up to limit active, unclaimed leads requested
	// at or before cutoff so concurrent sweepers never process the same lead.
	ClaimActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int, lease time.Duration) ([]domain.Lead, error)
	// Reassign records rec and moves the lead from rec.AgentID to toAgentID in
	// one transaction, provided the lead is still active, unresolved, owned by
	// rec.AgentID and toAgentID has not handled it before. The lead is then
	// held from the sweep for hold so the new agent gets a full cycle.
	Reassign(ctx context.Context, rec domain.RejectionRecord, toAgentID uuid.UUID, hold time.Duration) (domain.Lead, error)
	// Expire marks the lead Expired if it is still active, unresolved and owned by agentID.
	Expire(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error)
}

// LeadStore is the full persistence port.
type LeadStore interface {
	LeadReader
	LeadWriter
	LeadRotator
}

// AgentDirectory resolves agents, buyers and listings owned by the rest of the platform.
type AgentDirectory interface {
	FindAgentsByServiceArea(ctx context.Context, area string, excludeIDs []uuid.UUID, limit int) ([]domain.Agent, error)
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
	GetBuyer(ctx context.Context, id uuid.UUID) (domain.Buyer, error)
	GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error)
}

// CallScript names the message a placed call or SMS should carry.
type CallScript string

const (
	ScriptBuyerConfirmation CallScript = "buyer_confirmation"
	ScriptAgentConfirmation CallScript = "agent_confirmation"
	ScriptAgentMissedLead   CallScript = "agent_missed_lead"
	ScriptAgentNewLead      CallScript = "agent_new_lead"
)

// CallRequest is an outbound confirmation call.
type CallRequest struct {
	LeadID  uuid.UUID
	Role    domain.CallRole
	ToPhone string
	Script  CallScript
	Vars    map[string]string
}

// SMSRequest is an outbound text message.
type SMSRequest struct {
	LeadID  uuid.UUID
	ToPhone string
	Script  CallScript
	Vars    map[string]string
}

// CallProvider places calls and sends SMS through the voice provider.
type CallProvider interface {
	PlaceCall(ctx context.Context, req CallRequest) (callRef string, err error)
	SendSMS(ctx context.Context, req SMSRequest) (messageRef string, err error)
}

// Step identifies a delayed confirmation step.
type Step string

const (
	StepBuyerConfirm Step = "buyer_confirm"
	StepAgentCall    Step = "agent_call"
	StepVoicemail    Step = "voicemail_check"
)

// StepTask is a delayed step scheduled for one lead and one agent assignment.
type StepTask struct {
	Step    Step
	LeadID  uuid.UUID
	AgentID uuid.UUID
	RunAt   time.Time
}

// Scheduler arms delayed confirmation steps. Scheduling the same step for the
// same lead and agent twice is a no-op.
type Scheduler interface {
	Schedule(ctx context.Context, task StepTask) error
}
