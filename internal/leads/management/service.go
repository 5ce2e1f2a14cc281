// Package management handles the request-facing lead operations: creating a
// tour lead, reading its status and rejection history, and letting the
// assigned agent decline it.
package management

import (
	"context"
	"fmt"
	"time"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/rotation"
	"tour_portal_backend/internal/leads/transport"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultStaleLimit = 50
	maxRequestSkew    = 24 * time.Hour
)

// Repository defines the data access interface needed by the management service.
type Repository interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListRejections(ctx context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error)
	ListActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lead, error)
}

// Directory resolves the parties named on a new lead.
type Directory interface {
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
	GetBuyer(ctx context.Context, id uuid.UUID) (domain.Buyer, error)
	GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error)
}

// Starter begins the confirmation sequence for a stored lead.
type Starter interface {
	Start(ctx context.Context, lead domain.Lead) error
}

// Rotator moves a lead to the next eligible agent or expires it.
type Rotator interface {
	Rotate(ctx context.Context, lead domain.Lead, reason string, recordWhenExhausted bool) (rotation.Result, error)
}

// Service handles lead management operations.
type Service struct {
	repo         Repository
	directory    Directory
	starter      Starter
	rotator      Rotator
	eventBus     events.Bus
	log          *logger.Logger
	expiryWindow time.Duration
	now          func() time.Time
}

// New creates a new lead management service.
func New(repo Repository, directory Directory, starter Starter, rotator Rotator, eventBus events.Bus, log *logger.Logger, expiryWindow time.Duration) *Service {
	return &Service{
		repo:         repo,
		directory:    directory,
		starter:      starter,
		rotator:      rotator,
		eventBus:     eventBus,
		log:          log,
		expiryWindow: expiryWindow,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateLead stores a new lead for the listing's service area and starts the
// confirmation sequence. A failure to start confirmation is logged; the lead
// still exists and the rotation sweep will pick it up.
func (s *Service) CreateLead(ctx context.Context, req transport.CreateLeadRequest) (transport.CreateLeadResponse, error) {
	now := s.now()
	requestedAt := now
	if req.RequestedAt != nil {
		requestedAt = req.RequestedAt.UTC()
		if requestedAt.After(now.Add(maxRequestSkew)) {
			return transport.CreateLeadResponse{}, apperr.Validation("requestedAt is too far in the future")
		}
	}

	listing, err := s.directory.GetListing(ctx, req.ListingID)
	if err != nil {
		return transport.CreateLeadResponse{}, unknownParty("listing", err)
	}
	if listing.ServiceArea == "" {
		return transport.CreateLeadResponse{}, apperr.Validation("listing has no service area")
	}
	if _, err := s.directory.GetBuyer(ctx, req.BuyerID); err != nil {
		return transport.CreateLeadResponse{}, unknownParty("buyer", err)
	}
	if _, err := s.directory.GetAgent(ctx, req.AgentID); err != nil {
		return transport.CreateLeadResponse{}, unknownParty("agent", err)
	}

	lead, err := s.repo.Create(ctx, domain.NewLead(req.BuyerID, req.AgentID, req.ListingID, listing.ServiceArea, requestedAt))
	if err != nil {
		return transport.CreateLeadResponse{}, err
	}

	s.eventBus.Publish(ctx, events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		BuyerID:     lead.BuyerID,
		AgentID:     lead.AgentID,
		ListingID:   lead.ListingID,
		RequestedAt: lead.RequestedAt,
	})

	if err := s.starter.Start(ctx, lead); err != nil {
		s.log.Error("failed to start lead confirmation", "leadId", lead.ID, "error", err)
	}

	return transport.CreateLeadResponse{LeadID: lead.ID}, nil
}

// GetByID retrieves a lead by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.get(ctx, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead), nil
}

// GetLeadStatus returns the compact status view including the time left
// before the sweep may rotate the lead.
func (s *Service) GetLeadStatus(ctx context.Context, id uuid.UUID) (transport.LeadStatusResponse, error) {
	lead, err := s.get(ctx, id)
	if err != nil {
		return transport.LeadStatusResponse{}, err
	}
	return toStatusResponse(lead.StatusAt(s.now(), s.expiryWindow)), nil
}

// ListRejections returns the agents that already lost the lead, oldest first.
func (s *Service) ListRejections(ctx context.Context, id uuid.UUID) (transport.RejectionListResponse, error) {
	if _, err := s.get(ctx, id); err != nil {
		return transport.RejectionListResponse{}, err
	}
	records, err := s.repo.ListRejections(ctx, id)
	if err != nil {
		return transport.RejectionListResponse{}, err
	}
	return toRejectionList(records), nil
}

// DeclineLead lets the assigned agent hand the lead back. The lead moves to the
// next eligible agent, or expires when nobody is left.
func (s *Service) DeclineLead(ctx context.Context, id, agentID uuid.UUID) (transport.DeclineLeadResponse, error) {
	lead, err := s.get(ctx, id)
	if err != nil {
		return transport.DeclineLeadResponse{}, err
	}
	if lead.AgentID != agentID {
		return transport.DeclineLeadResponse{}, apperr.Forbidden("lead is not assigned to you")
	}
	if lead.IsResolved() || !lead.IsActive() {
		return transport.DeclineLeadResponse{}, apperr.Conflict("lead can no longer be declined")
	}

	result, err := s.rotator.Rotate(ctx, lead, rotation.RejectionReasonDeclined, true)
	if err != nil {
		return transport.DeclineLeadResponse{}, err
	}
	if result == rotation.ResultSkipped {
		return transport.DeclineLeadResponse{}, apperr.Conflict("lead changed while declining")
	}
	return transport.DeclineLeadResponse{LeadID: lead.ID, Outcome: string(result)}, nil
}

// ListStaleLeads lists active, unresolved leads requested before the cutoff.
func (s *Service) ListStaleLeads(ctx context.Context, req transport.StaleLeadsRequest) (transport.LeadListResponse, error) {
	olderThan := s.expiryWindow
	if req.OlderThanMinutes > 0 {
		olderThan = time.Duration(req.OlderThanMinutes) * time.Minute
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultStaleLimit
	}

	leads, err := s.repo.ListActiveLeadsOlderThan(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return transport.LeadListResponse{}, err
	}
	items := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, ToLeadResponse(lead))
	}
	return transport.LeadListResponse{Items: items, Total: len(items)}, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.Get(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

func unknownParty(name string, err error) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Validation(fmt.Sprintf("unknown %s", name))
	}
	return err
}
