// Package leadstest provides in-memory implementations of the lead engine
// ports for tests. They enforce the same preconditions as the Postgres store.
package leadstest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store is an in-memory ports.LeadStore.
type Store struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	rejections map[uuid.UUID][]domain.RejectionRecord
	claims     map[uuid.UUID]time.Time
	now        func() time.Time

	// UpdateErrs are returned, in order, by the next calls to Update before
	// any state is touched.
	UpdateErrs []error
	// ReassignErr is returned by Reassign when set.
	ReassignErr error
	// UpdateCalls counts Update invocations, including failed ones.
	UpdateCalls int
}

// NewStore returns an empty store using now as its clock.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		leads:      make(map[uuid.UUID]domain.Lead),
		rejections: make(map[uuid.UUID][]domain.RejectionRecord),
		claims:     make(map[uuid.UUID]time.Time),
		now:        now,
	}
}

// Put stores lead as-is.
func (s *Store) Put(lead domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
}

// Lead returns the stored lead or the zero value.
func (s *Store) Lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[id]
}

func (s *Store) Create(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.ID]; exists {
		return domain.Lead{}, apperr.Conflict("lead already exists")
	}
	now := s.now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	s.leads[lead.ID] = lead
	return lead, nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if len(s.UpdateErrs) > 0 {
		err := s.UpdateErrs[0]
		s.UpdateErrs = s.UpdateErrs[1:]
		if err != nil {
			return domain.Lead{}, err
		}
	}

	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if !guard.Allows(lead) || !patch.ValidateAgainst(lead) {
		return domain.Lead{}, apperr.Conflict("lead state changed")
	}
	if patch.IsEmpty() {
		return lead, nil
	}
	patch.Apply(&lead)
	lead.UpdatedAt = s.now()
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) CreateRejection(_ context.Context, rec domain.RejectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRejection(rec)
}

func (s *Store) addRejection(rec domain.RejectionRecord) error {
	for _, existing := range s.rejections[rec.LeadID] {
		if existing.AgentID == rec.AgentID {
			return nil
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.rejections[rec.LeadID] = append(s.rejections[rec.LeadID], rec)
	return nil
}

func (s *Store) ListRejections(_ context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rejections[leadID]), nil
}

func (s *Store) ListActiveLeadsOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale(cutoff, limit, false), nil
}

func (s *Store) ClaimActiveLeadsOlderThan(_ context.Context, cutoff time.Time, limit int, lease time.Duration) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stale(cutoff, limit, true)
	until := s.now().Add(lease)
	for _, lead := range out {
		s.claims[lead.ID] = until
	}
	return out, nil
}

func (s *Store) stale(cutoff time.Time, limit int, skipClaimed bool) []domain.Lead {
	now := s.now()
	out := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if !lead.IsActive() || lead.IsResolved() || lead.LifecycleStatus == domain.LifecycleConfirmedClaimed {
			continue
		}
		if lead.RequestedAt.After(cutoff) {
			continue
		}
		if until, claimed := s.claims[lead.ID]; skipClaimed && claimed && until.After(now) {
			continue
		}
		out = append(out, lead)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) Reassign(_ context.Context, rec domain.RejectionRecord, toAgentID uuid.UUID, hold time.Duration) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReassignErr != nil {
		return domain.Lead{}, s.ReassignErr
	}

	lead, ok := s.leads[rec.LeadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if !lead.IsActive() || lead.IsResolved() || lead.AgentID != rec.AgentID {
		return domain.Lead{}, apperr.Conflict("lead state changed")
	}
	for _, existing := range s.rejections[lead.ID] {
		if existing.AgentID == toAgentID {
			return domain.Lead{}, apperr.Conflict("agent already handled this lead")
		}
	}

	if err := s.addRejection(rec); err != nil {
		return domain.Lead{}, err
	}
	lead.AgentID = toAgentID
	lead.LifecycleStatus = domain.LifecycleNewLead
	lead.AgentCallStatus = domain.CallPending
	lead.AgentCallRef = nil
	lead.AgentCallAt = nil
	lead.VoicemailLeft = false
	lead.UpdatedAt = s.now()
	s.leads[lead.ID] = lead
	s.claims[lead.ID] = s.now().Add(hold)
	return lead, nil
}

func (s *Store) Expire(_ context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if !lead.IsActive() || lead.IsResolved() || lead.AgentID != agentID {
		return domain.Lead{}, apperr.Conflict("lead state changed")
	}
	lead.ExpiryStatus = domain.ExpiryExpired
	lead.LifecycleStatus = domain.LifecycleUnresponsive
	lead.UpdatedAt = s.now()
	s.leads[leadID] = lead
	delete(s.claims, leadID)
	return lead, nil
}

var _ ports.LeadStore = (*Store)(nil)
