package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/leadstest"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/internal/notification/broker"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgUnexpectedErr = "unexpected error: %v"

type recordingPublisher struct {
	mu       sync.Mutex
	messages []broker.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		out = append(out, msg.Topic)
	}
	return out
}

type fixture struct {
	module    *Module
	publisher *recordingPublisher
	provider  *leadstest.Provider
	directory *leadstest.Directory
	store     *leadstest.Store
	topics    broker.Topics
	agent     domain.Agent
	listing   domain.Listing
}

func newFixture() *fixture {
	phone := "+12015550124"
	f := &fixture{
		publisher: &recordingPublisher{},
		provider:  &leadstest.Provider{},
		directory: leadstest.NewDirectory(),
		store:     leadstest.NewStore(nil),
		topics:    broker.NewTopics("tours"),
		agent:     domain.Agent{ID: uuid.New(), Name: "Al", Phone: &phone, ServiceArea: "austin"},
	}
	f.listing = domain.Listing{ID: uuid.New(), AgentID: f.agent.ID, Address: "1 Main St", ServiceArea: "austin"}
	f.directory.AddAgent(f.agent)
	f.directory.AddListing(f.listing)
	f.module = New(f.publisher, f.topics, f.provider, f.directory, f.store, logger.New("test"))
	return f
}

func TestLeadAssignedNotifiesBothAgentsAndTextsNewAgent(t *testing.T) {
	f := newFixture()
	leadID, previous := uuid.New(), uuid.New()

	err := f.module.Handle(context.Background(), events.LeadAssigned{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          leadID,
		ListingID:       f.listing.ID,
		PreviousAgentID: previous,
		NewAgentID:      f.agent.ID,
		Reason:          domain.RejectionReasonTimedOut,
	})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	want := []string{f.topics.Lead(leadID), f.topics.Agent(previous), f.topics.Agent(f.agent.ID)}
	got := f.publisher.topics()
	if len(got) != len(want) {
		t.Fatalf("expected topics %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected topics %v, got %v", want, got)
		}
	}

	if len(f.provider.Messages) != 1 {
		t.Fatalf("expected one sms, got %d", len(f.provider.Messages))
	}
	sms := f.provider.Messages[0]
	if sms.Script != ports.ScriptAgentNewLead || sms.ToPhone != *f.agent.Phone || sms.Vars["address"] != "1 Main St" {
		t.Fatalf("unexpected sms %+v", sms)
	}
}

func TestAgentMissedLeadTextsAgent(t *testing.T) {
	f := newFixture()

	err := f.module.Handle(context.Background(), events.AgentMissedLead{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		AgentID:   f.agent.ID,
		ListingID: f.listing.ID,
	})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if len(f.provider.Messages) != 1 || f.provider.Messages[0].Script != ports.ScriptAgentMissedLead {
		t.Fatalf("expected missed lead sms, got %+v", f.provider.Messages)
	}
	if got := f.publisher.topics(); len(got) != 1 || got[0] != f.topics.Agent(f.agent.ID) {
		t.Fatalf("expected agent topic only, got %v", got)
	}
}

func TestAgentWithoutPhoneIsNotTexted(t *testing.T) {
	f := newFixture()
	silent := domain.Agent{ID: uuid.New(), Name: "Sam", ServiceArea: "austin"}
	f.directory.AddAgent(silent)

	err := f.module.Handle(context.Background(), events.AgentMissedLead{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		AgentID:   silent.ID,
	})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if len(f.provider.Messages) != 0 {
		t.Fatalf("expected no sms, got %d", len(f.provider.Messages))
	}
}

func TestSMSFailureStillPublishes(t *testing.T) {
	f := newFixture()
	f.provider.SMSErr = apperr.Unavailable("provider down", nil)

	err := f.module.Handle(context.Background(), events.LeadAssigned{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     uuid.New(),
		ListingID:  f.listing.ID,
		NewAgentID: f.agent.ID,
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected sms error to surface, got %v", err)
	}
	// The nil previous agent has no topic.
	if got := f.publisher.topics(); len(got) != 2 {
		t.Fatalf("expected lead and new agent topics, got %v", got)
	}
}

func TestStateChangedCarriesEventPayload(t *testing.T) {
	f := newFixture()
	leadID := uuid.New()
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := f.module.Handle(context.Background(), events.LeadStateChanged{
		BaseEvent:       events.BaseEvent{Timestamp: occurred},
		LeadID:          leadID,
		AgentID:         f.agent.ID,
		Step:            "agent_call",
		AgentCallStatus: string(domain.CallRinging),
	})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	msg := f.publisher.messages[0]
	if msg.Type != (events.LeadStateChanged{}).EventName() || !msg.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(msg.Data) == 0 {
		t.Fatal("expected event payload")
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	f := newFixture()
	boom := errors.New("redis down")
	f.publisher.err = boom

	err := f.module.Handle(context.Background(), events.LeadExpired{BaseEvent: events.NewBaseEvent(), LeadID: uuid.New(), AgentID: f.agent.ID})
	if !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func leadTopicFor(f *fixture, leadID string, userID uuid.UUID, roles ...string) (string, error) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/leads/"+leadID+"/stream", nil)
	c.Params = gin.Params{{Key: "id", Value: leadID}}
	c.Set(httpkit.ContextUserIDKey, userID)
	c.Set(httpkit.ContextRolesKey, roles)
	return f.module.leadTopic(c)
}

func TestLeadTopicAccess(t *testing.T) {
	f := newFixture()
	lead := domain.NewLead(uuid.New(), f.agent.ID, f.listing.ID, "austin", time.Now())
	f.store.Put(lead)
	id := lead.ID.String()

	for name, userID := range map[string]uuid.UUID{"agent": lead.AgentID, "buyer": lead.BuyerID} {
		topic, err := leadTopicFor(f, id, userID)
		if err != nil || topic != f.topics.Lead(lead.ID) {
			t.Fatalf("%s: expected lead topic, got %q err=%v", name, topic, err)
		}
	}

	if _, err := leadTopicFor(f, id, uuid.New(), httpkit.RoleAdmin); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if _, err := leadTopicFor(f, id, uuid.New()); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("stranger: expected forbidden, got %v", err)
	}
	if _, err := leadTopicFor(f, "nope", lead.AgentID); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if _, err := leadTopicFor(f, uuid.NewString(), lead.AgentID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterHandlersSubscribesLeadEvents(t *testing.T) {
	f := newFixture()
	bus := events.NewInMemoryBus(logger.New("test"))
	f.module.RegisterHandlers(bus)

	leadID := uuid.New()
	if err := bus.PublishSync(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), LeadID: leadID, AgentID: f.agent.ID}); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if got := f.publisher.topics(); len(got) != 2 || got[0] != f.topics.Lead(leadID) {
		t.Fatalf("unexpected topics %v", got)
	}
}
