// Package callevents merges call provider delivery-status callbacks into the
// lead. Merging is idempotent: duplicates, out-of-order deliveries and
// callbacks for superseded calls leave the lead unchanged.
package callevents

import (
	"context"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/leadevents"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/retry"

	"github.com/google/uuid"
)

// CallEvent is one delivery-status callback.
type CallEvent struct {
	LeadID          uuid.UUID
	CallRef         string
	Role            domain.CallRole
	ProviderStatus  string
	DurationSeconds *int
}

// Outcome reports what Ingest did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
	OutcomeDropped Outcome = "dropped"
)

// LeadStore is the subset of the lead store the ingestor uses.
type LeadStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, error)
}

type Ingestor struct {
	store    LeadStore
	eventBus events.Bus
	log      *logger.Logger
	retry    retry.Policy
}

func New(store LeadStore, eventBus events.Bus, log *logger.Logger) *Ingestor {
	return &Ingestor{
		store:    store,
		eventBus: eventBus,
		log:      log,
		retry:    retry.Default(),
	}
}

// WithRetry replaces the store retry policy.
func (i *Ingestor) WithRetry(policy retry.Policy) *Ingestor {
	i.retry = policy
	return i
}

// Ingest applies ev to its lead. It never returns an error: the provider is
// acknowledged regardless, and failures are logged.
func (i *Ingestor) Ingest(ctx context.Context, ev CallEvent) Outcome {
	log := i.log.With("leadId", ev.LeadID, "role", ev.Role, "providerStatus", ev.ProviderStatus, "callRef", ev.CallRef)

	status, ok := domain.ClassifyProviderStatus(ev.ProviderStatus, ev.DurationSeconds)
	if !ok {
		log.Debug("call event carries no outcome")
		return OutcomeIgnored
	}

	var lead domain.Lead
	err := i.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		lead, err = i.store.Get(ctx, ev.LeadID)
		return err
	})
	if apperr.Is(err, apperr.KindNotFound) {
		log.Warn("call event for unknown lead")
		return OutcomeIgnored
	}
	if err != nil {
		log.Error("call event dropped, lead could not be loaded", "error", err)
		return OutcomeDropped
	}

	if lead.IsResolved() {
		log.Debug("call event for resolved lead")
		return OutcomeIgnored
	}

	patch, guard, ok := i.plan(lead, ev, status)
	if !ok || !guard.Allows(lead) || !patch.ValidateAgainst(lead) {
		log.Debug("call event does not apply to current lead state",
			"agentCallStatus", lead.AgentCallStatus, "buyerCallStatus", lead.BuyerCallStatus)
		return OutcomeIgnored
	}

	var updated domain.Lead
	err = i.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = i.store.Update(ctx, lead.ID, patch, guard)
		return err
	})
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindNotFound):
		log.Debug("call event lost a race with another update")
		return OutcomeIgnored
	default:
		log.Error("call event dropped after retries", "error", err)
		return OutcomeDropped
	}

	step := "call_event_" + string(ev.Role)
	if ev.Role == domain.RoleAgent {
		i.log.LeadTransition(lead.ID.String(), step, string(lead.AgentCallStatus), string(updated.AgentCallStatus))
	} else {
		i.log.LeadTransition(lead.ID.String(), step, string(lead.BuyerCallStatus), string(updated.BuyerCallStatus))
	}

	i.eventBus.Publish(ctx, leadevents.StateChanged(updated, step))
	if ev.Role == domain.RoleAgent && status == domain.CallNoAnswer && lead.AgentCallStatus != domain.CallNoAnswer {
		i.eventBus.Publish(ctx, leadevents.AgentMissed(updated))
	}
	return OutcomeApplied
}

// plan builds the patch and precondition for the event. ok is false for
// callbacks that refer to a call other than the one stored on the lead.
func (i *Ingestor) plan(lead domain.Lead, ev CallEvent, status domain.CallStatus) (domain.LeadPatch, domain.Guard, bool) {
	guard := domain.Guard{RequireUnresolved: true}

	switch ev.Role {
	case domain.RoleAgent:
		// The agent leg changes hands on rotation, so only the call placed to
		// the current agent may settle it.
		if ev.CallRef == "" || !refMatches(lead.AgentCallRef, ev.CallRef) {
			return domain.LeadPatch{}, domain.Guard{}, false
		}
		guard.AgentID = domain.Ptr(lead.AgentID)
		guard.AgentCallRef = domain.Ptr(ev.CallRef)
		return agentPatch(status), guard, true

	case domain.RoleBuyer:
		if !refMatches(lead.BuyerCallRef, ev.CallRef) {
			return domain.LeadPatch{}, domain.Guard{}, false
		}
		if ev.CallRef != "" {
			guard.BuyerCallRef = domain.Ptr(ev.CallRef)
		}
		return domain.LeadPatch{BuyerCallStatus: domain.Ptr(status)}, guard, true

	default:
		return domain.LeadPatch{}, domain.Guard{}, false
	}
}

func agentPatch(status domain.CallStatus) domain.LeadPatch {
	switch status {
	case domain.CallAnswered:
		return domain.LeadPatch{
			AgentCallStatus:  domain.Ptr(domain.CallAnswered),
			ResolutionStatus: domain.Ptr(domain.ResolutionResolved),
			LifecycleStatus:  domain.Ptr(domain.LifecycleConfirmedClaimed),
		}
	case domain.CallNoAnswer:
		return domain.LeadPatch{
			AgentCallStatus:  domain.Ptr(domain.CallNoAnswer),
			ResolutionStatus: domain.Ptr(domain.ResolutionUnresolved),
			VoicemailLeft:    domain.Ptr(true),
		}
	default:
		return domain.LeadPatch{AgentCallStatus: domain.Ptr(status)}
	}
}

// refMatches accepts callbacks without a reference, and otherwise requires the
// reference of the call currently stored on the lead. Agent callbacks must
// always carry a reference.
func refMatches(stored *string, received string) bool {
	if received == "" {
		return true
	}
	return stored != nil && *stored == received
}
