package leadstest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// Directory is an in-memory ports.AgentDirectory. Agents are returned in
// insertion order.
type Directory struct {
	mu       sync.Mutex
	agents   []domain.Agent
	buyers   map[uuid.UUID]domain.Buyer
	listings map[uuid.UUID]domain.Listing
	FindErr  error
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		buyers:   make(map[uuid.UUID]domain.Buyer),
		listings: make(map[uuid.UUID]domain.Listing),
	}
}

// AddAgent registers an agent.
func (d *Directory) AddAgent(agent domain.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents = append(d.agents, agent)
}

// AddBuyer registers a buyer.
func (d *Directory) AddBuyer(buyer domain.Buyer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buyers[buyer.ID] = buyer
}

// AddListing registers a listing.
func (d *Directory) AddListing(listing domain.Listing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listings[listing.ID] = listing
}

func (d *Directory) FindAgentsByServiceArea(_ context.Context, area string, excludeIDs []uuid.UUID, limit int) ([]domain.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FindErr != nil {
		return nil, d.FindErr
	}
	out := make([]domain.Agent, 0)
	for _, agent := range d.agents {
		if agent.ServiceArea != area || slices.Contains(excludeIDs, agent.ID) {
			continue
		}
		out = append(out, agent)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (d *Directory) GetAgent(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, agent := range d.agents {
		if agent.ID == id {
			return agent, nil
		}
	}
	return domain.Agent{}, apperr.NotFound("agent not found")
}

func (d *Directory) GetBuyer(_ context.Context, id uuid.UUID) (domain.Buyer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buyer, ok := d.buyers[id]
	if !ok {
		return domain.Buyer{}, apperr.NotFound("buyer not found")
	}
	return buyer, nil
}

func (d *Directory) GetListing(_ context.Context, id uuid.UUID) (domain.Listing, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	listing, ok := d.listings[id]
	if !ok {
		return domain.Listing{}, apperr.NotFound("listing not found")
	}
	return listing, nil
}

// Provider records calls and messages instead of sending them.
type Provider struct {
	mu       sync.Mutex
	Calls    []ports.CallRequest
	Messages []ports.SMSRequest
	CallErr  error
	SMSErr   error
}

func (p *Provider) PlaceCall(_ context.Context, req ports.CallRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CallErr != nil {
		return "", p.CallErr
	}
	p.Calls = append(p.Calls, req)
	return fmt.Sprintf("CA%03d", len(p.Calls)), nil
}

func (p *Provider) SendSMS(_ context.Context, req ports.SMSRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SMSErr != nil {
		return "", p.SMSErr
	}
	p.Messages = append(p.Messages, req)
	return fmt.Sprintf("SM%03d", len(p.Messages)), nil
}

// CallsTo returns the calls placed for role.
func (p *Provider) CallsTo(role domain.CallRole) []ports.CallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ports.CallRequest, 0)
	for _, c := range p.Calls {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// MessageCount returns the number of messages sent.
func (p *Provider) MessageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Messages)
}

// Scheduler records scheduled steps, deduplicated the same way task ids are.
type Scheduler struct {
	mu    sync.Mutex
	Tasks []ports.StepTask
	seen  map[string]bool
	Err   error
}

func (s *Scheduler) Schedule(_ context.Context, task ports.StepTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	key := string(task.Step) + ":" + task.LeadID.String() + ":" + task.AgentID.String()
	if s.seen[key] {
		return nil
	}
	s.seen[key] = true
	s.Tasks = append(s.Tasks, task)
	return nil
}

// Find returns the first scheduled task for step.
func (s *Scheduler) Find(step ports.Step) (ports.StepTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.Tasks {
		if task.Step == step {
			return task, true
		}
	}
	return ports.StepTask{}, false
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var (
	_ ports.AgentDirectory = (*Directory)(nil)
	_ ports.CallProvider   = (*Provider)(nil)
	_ ports.Scheduler      = (*Scheduler)(nil)
)
