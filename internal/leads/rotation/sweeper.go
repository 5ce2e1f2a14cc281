// Package rotation periodically reassigns or expires leads whose agent has
// not claimed them within the expiry window.
package rotation

import (
	"context"
	"fmt"
	"time"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/retry"

	"github.com/google/uuid"
)

// RejectionReasonDeclined is recorded when an agent turns the lead down.
const RejectionReasonDeclined = "Declined by agent"

// Config holds the sweep cadence and batch limits.
type Config struct {
	Interval            time.Duration
	ExpiryWindow        time.Duration
	BatchSize           int
	ClaimTTL            time.Duration
	RestartConfirmation bool
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		ExpiryWindow: 15 * time.Minute,
		BatchSize:    50,
		ClaimTTL:     2 * time.Minute,
	}
}

// ConfigFrom reads the sweep settings from application config.
func ConfigFrom(cfg config.RotationConfig) Config {
	return Config{
		Interval:            cfg.GetSweepInterval(),
		ExpiryWindow:        cfg.GetExpiryWindow(),
		BatchSize:           cfg.GetSweepBatchSize(),
		ClaimTTL:            cfg.GetSweepClaimTTL(),
		RestartConfirmation: cfg.GetRotationRestartConfirmation(),
	}
}

// Store is the subset of the lead store the sweep uses.
type Store interface {
	ListRejections(ctx context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error)
	CreateRejection(ctx context.Context, rec domain.RejectionRecord) error
	ClaimActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int, lease time.Duration) ([]domain.Lead, error)
	Reassign(ctx context.Context, rec domain.RejectionRecord, toAgentID uuid.UUID, hold time.Duration) (domain.Lead, error)
	Expire(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error)
}

// AgentResolver finds the next eligible agent.
type AgentResolver interface {
	NextAgent(ctx context.Context, lead domain.Lead, excluded []uuid.UUID) (domain.Agent, bool, error)
}

// AgentCallArmer restarts the agent confirmation phase for a reassigned lead.
type AgentCallArmer interface {
	ArmAgentCall(ctx context.Context, lead domain.Lead) error
}

// Result is what happened to a single lead.
type Result string

const (
	ResultRotated Result = "rotated"
	ResultExpired Result = "expired"
	ResultSkipped Result = "skipped"
)

// Stats summarizes one sweep pass.
type Stats struct {
	Claimed int
	Rotated int
	Expired int
	Skipped int
	Failed  int
}

type Sweeper struct {
	store    Store
	resolver AgentResolver
	armer    AgentCallArmer
	eventBus events.Bus
	log      *logger.Logger
	cfg      Config
	retry    retry.Policy
	now      func() time.Time
}

func NewSweeper(store Store, resolver AgentResolver, eventBus events.Bus, log *logger.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		store:    store,
		resolver: resolver,
		eventBus: eventBus,
		log:      log,
		cfg:      cfg,
		retry:    retry.Default(),
		now:      time.Now,
	}
}

// WithAgentCallArmer enables re-arming the agent call after reassignment when
// the config asks for it.
func (s *Sweeper) WithAgentCallArmer(armer AgentCallArmer) *Sweeper {
	s.armer = armer
	return s
}

// WithClock replaces the time source. Used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithRetry replaces the store retry policy.
func (s *Sweeper) WithRetry(policy retry.Policy) *Sweeper {
	s.retry = policy
	return s
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("rotation sweep started", "interval", s.cfg.Interval, "expiryWindow", s.cfg.ExpiryWindow, "batchSize", s.cfg.BatchSize)
	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("rotation sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("rotation sweep failed", "error", err)
		return
	}
	if stats.Claimed > 0 {
		s.log.Info("rotation sweep completed",
			"claimed", stats.Claimed,
			"rotated", stats.Rotated,
			"expired", stats.Expired,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
	}
}

// RunOnce claims one batch of stale leads and rotates or expires each of them.
// A failing lead is logged and counted; it never stops the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	cutoff := s.now().Add(-s.cfg.ExpiryWindow)

	var leads []domain.Lead
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		leads, err = s.store.ClaimActiveLeadsOlderThan(ctx, cutoff, s.cfg.BatchSize, s.cfg.ClaimTTL)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("claim stale leads: %w", err)
	}
	stats.Claimed = len(leads)

	for _, lead := range leads {
		if ctx.Err() != nil {
			break
		}
		result, err := s.processSafely(ctx, lead)
		if err != nil {
			stats.Failed++
			s.log.Error("rotation failed for lead", "leadId", lead.ID, "agentId", lead.AgentID, "error", err)
			continue
		}
		switch result {
		case ResultRotated:
			stats.Rotated++
		case ResultExpired:
			stats.Expired++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (s *Sweeper) processSafely(ctx context.Context, lead domain.Lead) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic rotating lead: %v", r)
		}
	}()
	return s.Rotate(ctx, lead, domain.RejectionReasonTimedOut, false)
}

// Rotate hands lead to the next eligible agent, recording the current agent
// with reason. When nobody is left the lead is expired; recordWhenExhausted
// also records the current agent in that case.
func (s *Sweeper) Rotate(ctx context.Context, lead domain.Lead, reason string, recordWhenExhausted bool) (Result, error) {
	if lead.IsResolved() || lead.LifecycleStatus == domain.LifecycleConfirmedClaimed || !lead.IsActive() {
		return ResultSkipped, nil
	}

	var rejections []domain.RejectionRecord
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rejections, err = s.store.ListRejections(ctx, lead.ID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("list rejections: %w", err)
	}
	excluded := make([]uuid.UUID, 0, len(rejections))
	for _, rec := range rejections {
		excluded = append(excluded, rec.AgentID)
	}

	next, found, err := s.resolver.NextAgent(ctx, lead, excluded)
	if err != nil {
		return "", err
	}

	rec := domain.RejectionRecord{
		ID:      uuid.New(),
		LeadID:  lead.ID,
		AgentID: lead.AgentID,
		Reason:  reason,
	}

	if found {
		return s.reassign(ctx, lead, rec, next)
	}
	return s.expire(ctx, lead, rec, recordWhenExhausted)
}

func (s *Sweeper) reassign(ctx context.Context, lead domain.Lead, rec domain.RejectionRecord, next domain.Agent) (Result, error) {
	var updated domain.Lead
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Reassign(ctx, rec, next.ID, s.cfg.Interval)
		return err
	})
	if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
		s.log.LeadStepSkipped(lead.ID.String(), "rotation", "lead state changed concurrently")
		return ResultSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("reassign lead: %w", err)
	}

	s.log.LeadTransition(lead.ID.String(), "rotation", lead.AgentID.String(), next.ID.String())
	s.eventBus.Publish(ctx, events.LeadAssigned{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          updated.ID,
		ListingID:       updated.ListingID,
		PreviousAgentID: lead.AgentID,
		NewAgentID:      next.ID,
		Reason:          rec.Reason,
	})

	if s.cfg.RestartConfirmation && s.armer != nil {
		if err := s.armer.ArmAgentCall(ctx, updated); err != nil {
			s.log.Error("failed to re-arm agent call after rotation", "leadId", updated.ID, "agentId", updated.AgentID, "error", err)
		}
	}
	return ResultRotated, nil
}

func (s *Sweeper) expire(ctx context.Context, lead domain.Lead, rec domain.RejectionRecord, record bool) (Result, error) {
	if record {
		if err := s.retry.Do(ctx, func(ctx context.Context) error {
			return s.store.CreateRejection(ctx, rec)
		}); err != nil {
			return "", fmt.Errorf("record rejection: %w", err)
		}
	}

	var updated domain.Lead
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Expire(ctx, lead.ID, lead.AgentID)
		return err
	})
	if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
		s.log.LeadStepSkipped(lead.ID.String(), "expiry", "lead state changed concurrently")
		return ResultSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("expire lead: %w", err)
	}

	s.log.LeadTransition(lead.ID.String(), "expiry", string(domain.ExpiryActive), string(updated.ExpiryStatus))
	s.eventBus.Publish(ctx, events.LeadExpired{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    updated.ID,
		AgentID:   updated.AgentID,
	})
	return ResultExpired, nil
}
