package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewLeadStartsPending(t *testing.T) {
	requested := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lead := NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", requested)

	if lead.LifecycleStatus != LifecycleNewLead || lead.ExpiryStatus != ExpiryActive {
		t.Fatalf("unexpected initial statuses: %s %s", lead.LifecycleStatus, lead.ExpiryStatus)
	}
	if lead.ResolutionStatus != ResolutionPending || lead.AgentCallStatus != CallPending || lead.BuyerCallStatus != CallPending {
		t.Fatalf("unexpected initial call state: %+v", lead)
	}
	if lead.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
}

func TestTimeLeftNeverNegative(t *testing.T) {
	requested := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	if got := TimeLeft(requested, window, requested.Add(5*time.Minute)); got != 10*time.Minute {
		t.Errorf("expected 10m left, got %s", got)
	}
	if got := TimeLeft(requested, window, requested.Add(time.Hour)); got != 0 {
		t.Errorf("expected 0 left after expiry window, got %s", got)
	}
}

func TestAgentCallDueAtNeverBeforeRequestedAtPlusDelay(t *testing.T) {
	requested := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	delay := 2 * time.Minute

	if got := AgentCallDueAt(requested, requested.Add(-time.Minute), delay); !got.Equal(requested.Add(delay)) {
		t.Errorf("clock behind requestedAt: got %s", got)
	}
	if got := AgentCallDueAt(requested, requested.Add(time.Minute), delay); !got.Equal(requested.Add(3 * time.Minute)) {
		t.Errorf("clock after requestedAt: got %s", got)
	}
}

func TestGuardAllows(t *testing.T) {
	agentID := uuid.New()
	ref := "CA123"
	lead := NewLead(uuid.New(), agentID, uuid.New(), "austin", time.Now())
	lead.AgentCallStatus = CallRinging
	lead.AgentCallRef = &ref

	tests := []struct {
		name  string
		guard Guard
		want  bool
	}{
		{name: "zero guard", guard: Guard{}, want: true},
		{name: "matching agent and status", guard: Guard{AgentID: &agentID, AgentCallStatusIn: []CallStatus{CallRinging, CallNoAnswer}}, want: true},
		{name: "other agent", guard: Guard{AgentID: Ptr(uuid.New())}, want: false},
		{name: "status not in set", guard: Guard{AgentCallStatusIn: []CallStatus{CallNoAnswer}}, want: false},
		{name: "stale call ref", guard: Guard{AgentCallRef: Ptr("CA999")}, want: false},
		{name: "buyer ref missing", guard: Guard{BuyerCallRef: Ptr("CA1")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.guard.Allows(lead); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}

	lead.ResolutionStatus = ResolutionResolved
	if (Guard{RequireUnresolved: true}).Allows(lead) {
		t.Error("resolved lead must fail RequireUnresolved")
	}
	lead.ExpiryStatus = ExpiryExpired
	if (Guard{RequireActive: true}).Allows(lead) {
		t.Error("expired lead must fail RequireActive")
	}
}

func TestPatchValidateAgainstRejectsRegressions(t *testing.T) {
	lead := NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", time.Now())
	lead.ResolutionStatus = ResolutionResolved
	lead.AgentCallStatus = CallAnswered
	lead.LifecycleStatus = LifecycleConfirmedClaimed

	if (LeadPatch{AgentCallStatus: Ptr(CallNoAnswer)}).ValidateAgainst(lead) {
		t.Error("Answered -> NoAnswer must be rejected")
	}
	if (LeadPatch{ResolutionStatus: Ptr(ResolutionUnresolved)}).ValidateAgainst(lead) {
		t.Error("Resolved -> Unresolved must be rejected")
	}

	lead.ExpiryStatus = ExpiryExpired
	if (LeadPatch{ExpiryStatus: Ptr(ExpiryActive)}).ValidateAgainst(lead) {
		t.Error("Expired -> Active must be rejected")
	}
}

func TestPatchApply(t *testing.T) {
	lead := NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", time.Now())
	at := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

	patch := LeadPatch{
		AgentCallStatus: Ptr(CallRinging),
		LifecycleStatus: Ptr(LifecycleAwaitingAgentCall),
		AgentCallRef:    Ptr("CA42"),
		AgentCallAt:     &at,
	}
	if patch.IsEmpty() {
		t.Fatal("patch must not be empty")
	}
	patch.Apply(&lead)

	if lead.AgentCallStatus != CallRinging || lead.LifecycleStatus != LifecycleAwaitingAgentCall {
		t.Fatalf("unexpected statuses after apply: %+v", lead)
	}
	if lead.AgentCallRef == nil || *lead.AgentCallRef != "CA42" || !lead.AgentCallAt.Equal(at) {
		t.Fatalf("unexpected call details after apply: %+v", lead)
	}
	if !(LeadPatch{}).IsEmpty() {
		t.Error("zero patch must be empty")
	}
}
