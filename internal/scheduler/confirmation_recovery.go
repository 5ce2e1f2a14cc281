package scheduler

import (
	"context"
	"time"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultRecoveryInterval = time.Minute
	defaultRecoveryGrace    = 5 * time.Minute
	recoveryBatchSize       = 100
)

// StrandedLeadLister lists active, unresolved leads requested before cutoff
// and the agents a lead was already taken from.
type StrandedLeadLister interface {
	ListActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lead, error)
	ListRejections(ctx context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error)
}

// AgentCallArmer schedules the agent call for a lead's current agent.
type AgentCallArmer interface {
	ArmAgentCall(ctx context.Context, lead domain.Lead) error
}

// ConfirmationRecovery periodically re-arms the agent call for leads whose
// agent was never dialed, for example because Redis was unreachable when the
// lead was created. Arming is idempotent, so leads whose task is merely late
// are unaffected. Rotated leads are only re-armed when rotation restarts the
// confirmation phase; otherwise their new agent is notified and never dialed.
type ConfirmationRecovery struct {
	leads          StrandedLeadLister
	armer          AgentCallArmer
	log            *logger.Logger
	interval       time.Duration
	grace          time.Duration
	includeRotated bool
	now            func() time.Time
}

// NewConfirmationRecovery creates the recovery loop. grace is added to the
// agent call delay before a pending agent call counts as stranded.
func NewConfirmationRecovery(leads StrandedLeadLister, armer AgentCallArmer, log *logger.Logger, interval, agentCallDelay, grace time.Duration) *ConfirmationRecovery {
	if interval <= 0 {
		interval = defaultRecoveryInterval
	}
	if grace <= 0 {
		grace = defaultRecoveryGrace
	}

	return &ConfirmationRecovery{
		leads:    leads,
		armer:    armer,
		log:      log,
		interval: interval,
		grace:    agentCallDelay + grace,
		now:      time.Now,
	}
}

// WithRotatedLeads also re-arms leads that were reassigned by the sweep. Set it
// when rotation restarts the confirmation phase.
func (r *ConfirmationRecovery) WithRotatedLeads(enabled bool) *ConfirmationRecovery {
	r.includeRotated = enabled
	return r
}

func (r *ConfirmationRecovery) Run(ctx context.Context) {
	if r == nil || r.leads == nil || r.armer == nil {
		return
	}

	r.recover(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recover(ctx)
		}
	}
}

func (r *ConfirmationRecovery) recover(ctx context.Context) int {
	leads, err := r.leads.ListActiveLeadsOlderThan(ctx, r.now().Add(-r.grace), recoveryBatchSize)
	if err != nil {
		r.log.Warn("confirmation recovery scan failed", "error", err)
		return 0
	}

	rearmed := 0
	for _, lead := range leads {
		if lead.AgentCallStatus != domain.CallPending {
			continue
		}
		if !r.includeRotated {
			rotated, err := r.wasRotated(ctx, lead)
			if err != nil {
				r.log.Warn("confirmation recovery could not load rejections", "leadId", lead.ID, "error", err)
				continue
			}
			if rotated {
				continue
			}
		}
		if err := r.armer.ArmAgentCall(ctx, lead); err != nil {
			r.log.Warn("confirmation recovery could not re-arm agent call", "leadId", lead.ID, "error", err)
			continue
		}
		rearmed++
	}

	if rearmed > 0 {
		r.log.Info("confirmation recovery re-armed agent calls", "count", rearmed)
	}
	return rearmed
}

func (r *ConfirmationRecovery) wasRotated(ctx context.Context, lead domain.Lead) (bool, error) {
	rejections, err := r.leads.ListRejections(ctx, lead.ID)
	if err != nil {
		return false, err
	}
	return len(rejections) > 0, nil
}
