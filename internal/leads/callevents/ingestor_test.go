package callevents

import (
	"context"
	"errors"
	"testing"
	"time"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/leadstest"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/retry"

	"github.com/google/uuid"
)

const (
	msgUnexpectedOutcome = "expected outcome %s, got %s"
	agentRef             = "CA-agent-1"
	buyerRef             = "CA-buyer-1"
)

func seconds(v int) *int { return &v }

func setup(t *testing.T) (*Ingestor, *leadstest.Store, *leadstest.Bus, domain.Lead) {
	t.Helper()
	store := leadstest.NewStore(nil)
	bus := &leadstest.Bus{}

	lead := domain.NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	lead.LifecycleStatus = domain.LifecycleAwaitingAgentCall
	lead.AgentCallStatus = domain.CallRinging
	lead.AgentCallRef = domain.Ptr(agentRef)
	lead.BuyerCallStatus = domain.CallRinging
	lead.BuyerCallRef = domain.Ptr(buyerRef)
	store.Put(lead)

	ing := New(store, bus, logger.New("test")).WithRetry(retry.Policy{Attempts: 3, Backoff: time.Millisecond})
	return ing, store, bus, lead
}

func agentEvent(lead domain.Lead, status string, duration *int) CallEvent {
	return CallEvent{LeadID: lead.ID, CallRef: agentRef, Role: domain.RoleAgent, ProviderStatus: status, DurationSeconds: duration}
}

// Answered for 42s resolves the lead; a later no-answer for the same call changes nothing.
func TestAnsweredCallResolvesAndLaterEventsAreNoops(t *testing.T) {
	ing, store, bus, lead := setup(t)

	if got := ing.Ingest(context.Background(), agentEvent(lead, "completed", seconds(42))); got != OutcomeApplied {
		t.Fatalf(msgUnexpectedOutcome, OutcomeApplied, got)
	}
	resolved := store.Lead(lead.ID)
	if resolved.AgentCallStatus != domain.CallAnswered || resolved.ResolutionStatus != domain.ResolutionResolved || resolved.LifecycleStatus != domain.LifecycleConfirmedClaimed {
		t.Fatalf("expected Answered/Resolved/ConfirmedClaimed, got %+v", resolved)
	}

	if got := ing.Ingest(context.Background(), agentEvent(lead, "no-answer", nil)); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	after := store.Lead(lead.ID)
	if after.AgentCallStatus != domain.CallAnswered || after.ResolutionStatus != domain.ResolutionResolved || after.LifecycleStatus != domain.LifecycleConfirmedClaimed {
		t.Fatalf("resolved lead regressed: %+v", after)
	}
	if len(bus.Named("leads.agent_missed")) != 0 {
		t.Fatal("no missed-lead notification expected for a resolved lead")
	}
}

func TestShortCompletedCallIsNoAnswer(t *testing.T) {
	ing, store, bus, lead := setup(t)

	if got := ing.Ingest(context.Background(), agentEvent(lead, "completed", seconds(3))); got != OutcomeApplied {
		t.Fatalf(msgUnexpectedOutcome, OutcomeApplied, got)
	}
	got := store.Lead(lead.ID)
	if got.AgentCallStatus != domain.CallNoAnswer || got.ResolutionStatus != domain.ResolutionUnresolved || !got.VoicemailLeft {
		t.Fatalf("expected NoAnswer/Unresolved/voicemailLeft, got %+v", got)
	}
	if len(bus.Named("leads.agent_missed")) != 1 {
		t.Fatal("expected the agent to be notified once")
	}
}

func TestDuplicateNoAnswerNotifiesOnce(t *testing.T) {
	ing, _, bus, lead := setup(t)

	ing.Ingest(context.Background(), agentEvent(lead, "no-answer", nil))
	ing.Ingest(context.Background(), agentEvent(lead, "no-answer", nil))

	if got := len(bus.Named("leads.agent_missed")); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
}

func TestAmbiguousDurationIsIgnored(t *testing.T) {
	ing, store, _, lead := setup(t)

	if got := ing.Ingest(context.Background(), agentEvent(lead, "completed", seconds(8))); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	if got := store.Lead(lead.ID).AgentCallStatus; got != domain.CallRinging {
		t.Fatalf("expected lead untouched, got %s", got)
	}
}

func TestLateAnswerAfterNoAnswerStillResolves(t *testing.T) {
	ing, store, _, lead := setup(t)

	ing.Ingest(context.Background(), agentEvent(lead, "no-answer", nil))
	if got := ing.Ingest(context.Background(), agentEvent(lead, "completed", seconds(30))); got != OutcomeApplied {
		t.Fatalf(msgUnexpectedOutcome, OutcomeApplied, got)
	}
	if got := store.Lead(lead.ID).ResolutionStatus; got != domain.ResolutionResolved {
		t.Fatalf("expected Resolved, got %s", got)
	}
}

func TestBuyerEventOnlyTouchesBuyerStatus(t *testing.T) {
	ing, store, _, lead := setup(t)

	ev := CallEvent{LeadID: lead.ID, CallRef: buyerRef, Role: domain.RoleBuyer, ProviderStatus: "completed", DurationSeconds: seconds(25)}
	if got := ing.Ingest(context.Background(), ev); got != OutcomeApplied {
		t.Fatalf(msgUnexpectedOutcome, OutcomeApplied, got)
	}
	got := store.Lead(lead.ID)
	if got.BuyerCallStatus != domain.CallAnswered {
		t.Fatalf("expected buyer Answered, got %s", got.BuyerCallStatus)
	}
	if got.AgentCallStatus != domain.CallRinging || got.ResolutionStatus != domain.ResolutionPending || got.LifecycleStatus != domain.LifecycleAwaitingAgentCall {
		t.Fatalf("buyer event changed agent-side state: %+v", got)
	}
}

func TestStaleCallRefIsIgnored(t *testing.T) {
	ing, store, _, lead := setup(t)

	ev := agentEvent(lead, "completed", seconds(60))
	ev.CallRef = "CA-previous-agent"
	if got := ing.Ingest(context.Background(), ev); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	if store.Lead(lead.ID).IsResolved() {
		t.Fatal("a callback for a superseded call must not resolve the lead")
	}
}

func TestAgentEventWithoutCallRefIsIgnored(t *testing.T) {
	ing, store, bus, lead := setup(t)

	ev := agentEvent(lead, "completed", seconds(60))
	ev.CallRef = ""
	if got := ing.Ingest(context.Background(), ev); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	if store.UpdateCalls != 0 || len(bus.Events) != 0 {
		t.Fatal("an agent callback without a call reference must not touch the lead")
	}
}

// After rotation the new agent has not been dialed; a late callback from the
// previous agent's call must not resolve the lead for them.
func TestLateCallbackAfterRotationIsIgnored(t *testing.T) {
	ing, store, _, lead := setup(t)

	rotated := store.Lead(lead.ID)
	rotated.AgentID = uuid.New()
	rotated.LifecycleStatus = domain.LifecycleNewLead
	rotated.AgentCallStatus = domain.CallPending
	rotated.AgentCallRef = nil
	store.Put(rotated)

	for _, ref := range []string{"", agentRef} {
		ev := agentEvent(lead, "completed", seconds(60))
		ev.CallRef = ref
		if got := ing.Ingest(context.Background(), ev); got != OutcomeIgnored {
			t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
		}
	}
	if got := store.Lead(lead.ID); got.IsResolved() || got.AgentCallStatus != domain.CallPending {
		t.Fatalf("expected the new agent's leg untouched, got %+v", got)
	}
}

func TestUnknownLeadIsIgnoredWithoutRetry(t *testing.T) {
	ing, store, _, _ := setup(t)

	ev := CallEvent{LeadID: uuid.New(), Role: domain.RoleAgent, ProviderStatus: "no-answer"}
	if got := ing.Ingest(context.Background(), ev); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	if store.UpdateCalls != 0 {
		t.Fatalf("expected no update attempts, got %d", store.UpdateCalls)
	}
}

func TestTransientStoreErrorsAreRetriedThenDropped(t *testing.T) {
	ing, store, bus, lead := setup(t)
	transient := errors.New("connection refused")
	store.UpdateErrs = []error{transient, transient, transient}

	if got := ing.Ingest(context.Background(), agentEvent(lead, "completed", seconds(42))); got != OutcomeDropped {
		t.Fatalf(msgUnexpectedOutcome, OutcomeDropped, got)
	}
	if store.UpdateCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.UpdateCalls)
	}
	if len(bus.Events) != 0 {
		t.Fatal("dropped events must not publish")
	}
}

func TestUnknownProviderStatusIsIgnored(t *testing.T) {
	ing, store, _, lead := setup(t)

	if got := ing.Ingest(context.Background(), agentEvent(lead, "transferred", nil)); got != OutcomeIgnored {
		t.Fatalf(msgUnexpectedOutcome, OutcomeIgnored, got)
	}
	if store.UpdateCalls != 0 {
		t.Fatal("unknown statuses must not reach the store")
	}
}
