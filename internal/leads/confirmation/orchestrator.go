// Package confirmation drives the buyer and agent confirmation calls for a
// newly created or reassigned lead.
//
// Every step is a durable delayed task. A task re-reads the lead and writes
// with store-enforced preconditions, so a step that lost a race to a provider
// callback, the rotation sweep or another step becomes a no-op.
package confirmation

import (
	"context"
	"errors"
	"time"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/leadevents"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/phone"
	"tour_portal_backend/platform/retry"

	"github.com/google/uuid"
)

// ErrTooEarly is returned when an agent-call task fires before the agent call
// delay has elapsed since the request. The task is retried later.
var ErrTooEarly = errors.New("agent call is not due yet")

// Config holds the confirmation timing.
type Config struct {
	AgentCallDelay     time.Duration
	BuyerConfirmWindow time.Duration
	VoicemailWindow    time.Duration
	Retry              retry.Policy
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		AgentCallDelay:     2 * time.Minute,
		BuyerConfirmWindow: 30 * time.Second,
		VoicemailWindow:    60 * time.Second,
		Retry:              retry.Default(),
	}
}

// ConfigFrom reads the timing from application config.
func ConfigFrom(cfg config.ConfirmationConfig) Config {
	c := DefaultConfig()
	c.AgentCallDelay = cfg.GetAgentCallDelay()
	c.BuyerConfirmWindow = cfg.GetBuyerConfirmWindow()
	c.VoicemailWindow = cfg.GetVoicemailWindow()
	return c
}

// LeadStore is the subset of the lead store the orchestrator uses.
type LeadStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, error)
}

type Orchestrator struct {
	store     LeadStore
	directory ports.AgentDirectory
	provider  ports.CallProvider
	scheduler ports.Scheduler
	eventBus  events.Bus
	log       *logger.Logger
	cfg       Config
	now       func() time.Time
}

func New(store LeadStore, directory ports.AgentDirectory, provider ports.CallProvider, scheduler ports.Scheduler, eventBus events.Bus, log *logger.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		directory: directory,
		provider:  provider,
		scheduler: scheduler,
		eventBus:  eventBus,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Start calls the buyer immediately and arms the buyer-confirm and agent-call
// steps. A failed buyer call never prevents the agent phase. The returned
// error only reports steps that could not be scheduled.
func (o *Orchestrator) Start(ctx context.Context, lead domain.Lead) error {
	o.callBuyer(ctx, lead)

	now := o.now()
	return errors.Join(
		o.scheduler.Schedule(ctx, ports.StepTask{
			Step:    ports.StepBuyerConfirm,
			LeadID:  lead.ID,
			AgentID: lead.AgentID,
			RunAt:   now.Add(o.cfg.BuyerConfirmWindow),
		}),
		o.ArmAgentCall(ctx, lead),
	)
}

// ArmAgentCall schedules the agent call for the lead's current agent, never
// earlier than requestedAt plus the agent call delay.
func (o *Orchestrator) ArmAgentCall(ctx context.Context, lead domain.Lead) error {
	return o.scheduler.Schedule(ctx, ports.StepTask{
		Step:    ports.StepAgentCall,
		LeadID:  lead.ID,
		AgentID: lead.AgentID,
		RunAt:   domain.AgentCallDueAt(lead.RequestedAt, o.now(), o.cfg.AgentCallDelay),
	})
}

func (o *Orchestrator) callBuyer(ctx context.Context, lead domain.Lead) {
	const step = "buyer_call"
	guard := domain.Guard{BuyerCallStatusIn: []domain.CallStatus{domain.CallPending}}

	buyer, err := o.directory.GetBuyer(ctx, lead.BuyerID)
	if err != nil {
		o.log.Warn("buyer lookup failed, marking buyer call unanswered", "leadId", lead.ID, "buyerId", lead.BuyerID, "error", err)
	}
	toPhone, usable := usablePhone(buyer.Phone)
	if err != nil || !usable {
		o.write(ctx, step, lead, domain.LeadPatch{BuyerCallStatus: domain.Ptr(domain.CallNoAnswer)}, guard)
		return
	}

	callRef, err := o.provider.PlaceCall(ctx, ports.CallRequest{
		LeadID:  lead.ID,
		Role:    domain.RoleBuyer,
		ToPhone: toPhone,
		Script:  ports.ScriptBuyerConfirmation,
		Vars:    map[string]string{"buyerName": buyer.Name},
	})
	if err != nil {
		o.log.Warn("buyer call failed", "leadId", lead.ID, "error", err)
		o.write(ctx, step, lead, domain.LeadPatch{BuyerCallStatus: domain.Ptr(domain.CallNoAnswer)}, guard)
		return
	}

	now := o.now()
	o.write(ctx, step, lead, domain.LeadPatch{
		BuyerCallStatus: domain.Ptr(domain.CallRinging),
		BuyerCallRef:    &callRef,
		BuyerCallAt:     &now,
	}, guard)
}

// HandleBuyerConfirmDue closes the buyer confirmation window: a buyer call
// still ringing is recorded as unanswered.
func (o *Orchestrator) HandleBuyerConfirmDue(ctx context.Context, leadID uuid.UUID) error {
	const step = string(ports.StepBuyerConfirm)

	lead, ok := o.load(ctx, step, leadID)
	if !ok {
		return nil
	}
	if lead.BuyerCallStatus != domain.CallRinging {
		o.log.LeadStepSkipped(leadID.String(), step, "buyer call is "+string(lead.BuyerCallStatus))
		return nil
	}

	o.write(ctx, step, lead, domain.LeadPatch{BuyerCallStatus: domain.Ptr(domain.CallNoAnswer)},
		domain.Guard{BuyerCallStatusIn: []domain.CallStatus{domain.CallRinging}})
	return nil
}

// HandleAgentCallDue places the agent call if the lead still belongs to
// agentID and the agent has not been called or answered yet.
func (o *Orchestrator) HandleAgentCallDue(ctx context.Context, leadID, agentID uuid.UUID) error {
	const step = string(ports.StepAgentCall)

	lead, ok := o.load(ctx, step, leadID)
	if !ok {
		return nil
	}
	if reason, skip := o.agentStepObsolete(lead, agentID); skip {
		o.log.LeadStepSkipped(leadID.String(), step, reason)
		return nil
	}
	if lead.AgentCallStatus != domain.CallPending {
		o.log.LeadStepSkipped(leadID.String(), step, "agent call is "+string(lead.AgentCallStatus))
		return nil
	}
	if due := lead.RequestedAt.Add(o.cfg.AgentCallDelay); o.now().Before(due) {
		return ErrTooEarly
	}

	o.TryAgentCall(ctx, lead)
	return nil
}

// TryAgentCall calls the lead's current agent. Missing contact details or a
// provider failure mark the call unanswered and the lead unresolved; a placed
// call arms the voicemail window.
func (o *Orchestrator) TryAgentCall(ctx context.Context, lead domain.Lead) {
	const step = "agent_call"
	guard := domain.Guard{
		RequireUnresolved: true,
		RequireActive:     true,
		AgentID:           domain.Ptr(lead.AgentID),
		AgentCallStatusIn: []domain.CallStatus{domain.CallPending},
	}
	unanswered := domain.LeadPatch{
		AgentCallStatus:  domain.Ptr(domain.CallNoAnswer),
		ResolutionStatus: domain.Ptr(domain.ResolutionUnresolved),
	}

	agent, err := o.directory.GetAgent(ctx, lead.AgentID)
	if err != nil {
		o.log.Warn("agent lookup failed, marking agent call unanswered", "leadId", lead.ID, "agentId", lead.AgentID, "error", err)
	}
	toPhone, usable := usablePhone(agent.Phone)
	if err != nil || !usable {
		if updated, ok := o.write(ctx, step, lead, unanswered, guard); ok {
			o.eventBus.Publish(ctx, leadevents.StateChanged(updated, step))
		}
		return
	}

	callRef, err := o.provider.PlaceCall(ctx, ports.CallRequest{
		LeadID:  lead.ID,
		Role:    domain.RoleAgent,
		ToPhone: toPhone,
		Script:  ports.ScriptAgentConfirmation,
		Vars:    map[string]string{"agentName": agent.Name},
	})
	if err != nil {
		o.log.Warn("agent call failed", "leadId", lead.ID, "agentId", lead.AgentID, "error", err)
		if updated, ok := o.write(ctx, step, lead, unanswered, guard); ok {
			o.eventBus.Publish(ctx, leadevents.StateChanged(updated, step))
		}
		return
	}

	now := o.now()
	updated, ok := o.write(ctx, step, lead, domain.LeadPatch{
		AgentCallStatus: domain.Ptr(domain.CallRinging),
		LifecycleStatus: domain.Ptr(domain.LifecycleAwaitingAgentCall),
		AgentCallRef:    &callRef,
		AgentCallAt:     &now,
	}, guard)
	if !ok {
		return
	}
	o.eventBus.Publish(ctx, leadevents.StateChanged(updated, step))

	if err := o.scheduler.Schedule(ctx, ports.StepTask{
		Step:    ports.StepVoicemail,
		LeadID:  lead.ID,
		AgentID: lead.AgentID,
		RunAt:   now.Add(o.cfg.VoicemailWindow),
	}); err != nil {
		o.log.Error("failed to arm voicemail window", "leadId", lead.ID, "error", err)
	}
}

// HandleVoicemailDue closes the voicemail window: an agent call that is still
// ringing or unanswered becomes Voicemail and the agent is told they missed the lead.
func (o *Orchestrator) HandleVoicemailDue(ctx context.Context, leadID, agentID uuid.UUID) error {
	const step = string(ports.StepVoicemail)

	lead, ok := o.load(ctx, step, leadID)
	if !ok {
		return nil
	}
	if reason, skip := o.agentStepObsolete(lead, agentID); skip {
		o.log.LeadStepSkipped(leadID.String(), step, reason)
		return nil
	}
	if lead.AgentCallStatus != domain.CallRinging && lead.AgentCallStatus != domain.CallNoAnswer {
		o.log.LeadStepSkipped(leadID.String(), step, "agent call is "+string(lead.AgentCallStatus))
		return nil
	}

	updated, ok := o.write(ctx, step, lead, domain.LeadPatch{
		AgentCallStatus:  domain.Ptr(domain.CallVoicemail),
		VoicemailLeft:    domain.Ptr(true),
		ResolutionStatus: domain.Ptr(domain.ResolutionUnresolved),
		LifecycleStatus:  domain.Ptr(domain.LifecycleNeedsFollowUp),
	}, domain.Guard{
		RequireUnresolved: true,
		AgentID:           domain.Ptr(agentID),
		AgentCallStatusIn: []domain.CallStatus{domain.CallRinging, domain.CallNoAnswer},
	})
	if !ok {
		return nil
	}

	o.eventBus.Publish(ctx, leadevents.StateChanged(updated, step))
	o.eventBus.Publish(ctx, leadevents.AgentMissed(updated))
	return nil
}

func (o *Orchestrator) agentStepObsolete(lead domain.Lead, agentID uuid.UUID) (string, bool) {
	switch {
	case lead.AgentID != agentID:
		return "lead was reassigned", true
	case lead.IsResolved():
		return "lead is resolved", true
	case !lead.IsActive():
		return "lead is expired", true
	default:
		return "", false
	}
}

func (o *Orchestrator) load(ctx context.Context, step string, leadID uuid.UUID) (domain.Lead, bool) {
	var lead domain.Lead
	err := o.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		lead, err = o.store.Get(ctx, leadID)
		return err
	})
	if apperr.Is(err, apperr.KindNotFound) {
		o.log.LeadStepSkipped(leadID.String(), step, "lead not found")
		return domain.Lead{}, false
	}
	if err != nil {
		o.log.Error("failed to load lead", "leadId", leadID, "step", step, "error", err)
		return domain.Lead{}, false
	}
	return lead, true
}

// write applies patch with bounded retries. A failed precondition means
// another trigger got there first and is logged at debug level.
func (o *Orchestrator) write(ctx context.Context, step string, lead domain.Lead, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, bool) {
	var updated domain.Lead
	err := o.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = o.store.Update(ctx, lead.ID, patch, guard)
		return err
	})
	switch {
	case err == nil:
		o.logTransition(step, lead, updated)
		return updated, true
	case apperr.Is(err, apperr.KindConflict):
		o.log.LeadStepSkipped(lead.ID.String(), step, "lead state changed concurrently")
	case apperr.Is(err, apperr.KindNotFound):
		o.log.LeadStepSkipped(lead.ID.String(), step, "lead not found")
	default:
		o.log.Error("lead update dropped after retries", "leadId", lead.ID, "step", step, "error", err)
	}
	return domain.Lead{}, false
}

func (o *Orchestrator) logTransition(step string, before, after domain.Lead) {
	if before.AgentCallStatus != after.AgentCallStatus {
		o.log.LeadTransition(after.ID.String(), step, string(before.AgentCallStatus), string(after.AgentCallStatus))
	}
	if before.BuyerCallStatus != after.BuyerCallStatus {
		o.log.LeadTransition(after.ID.String(), step, string(before.BuyerCallStatus), string(after.BuyerCallStatus))
	}
}

func usablePhone(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	normalized, err := phone.ParseE164(*raw, phone.DefaultRegion)
	if err != nil {
		return "", false
	}
	return normalized, true
}
