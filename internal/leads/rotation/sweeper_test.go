package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/eligibility"
	"tour_portal_backend/internal/leads/leadstest"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/retry"

	"github.com/google/uuid"
)

const msgUnexpectedErr = "unexpected error: %v"

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *leadstest.Store
	directory *leadstest.Directory
	bus       *leadstest.Bus
	clock     *leadstest.Clock
	sweeper   *Sweeper
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := leadstest.NewClock(t0)
	f := &fixture{
		store:     leadstest.NewStore(clock.Now),
		directory: leadstest.NewDirectory(),
		bus:       &leadstest.Bus{},
		clock:     clock,
	}
	f.sweeper = NewSweeper(f.store, eligibility.New(f.directory), f.bus, logger.New("test"), cfg).
		WithClock(clock.Now).
		WithRetry(retry.Policy{Attempts: 3, Backoff: time.Millisecond})
	return f
}

func (f *fixture) addAgent(area string) domain.Agent {
	agent := domain.Agent{ID: uuid.New(), ServiceArea: area}
	f.directory.AddAgent(agent)
	return agent
}

func (f *fixture) addLead(agentID uuid.UUID, requestedAt time.Time) domain.Lead {
	lead := domain.NewLead(uuid.New(), agentID, uuid.New(), "austin", requestedAt)
	f.store.Put(lead)
	return lead
}

// Stale lead with a free agent in the area is rotated and stays active.
func TestRunOnceRotatesToNextAgent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	a2 := f.addAgent("austin")
	lead := f.addLead(a1.ID, t0)
	f.clock.Set(t0.Add(16 * time.Minute))

	stats, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Rotated != 1 {
		t.Fatalf("expected one rotation, got %+v", stats)
	}

	got := f.store.Lead(lead.ID)
	if got.AgentID != a2.ID || got.ExpiryStatus != domain.ExpiryActive {
		t.Fatalf("expected lead with A2 and Active, got agent=%s expiry=%s", got.AgentID, got.ExpiryStatus)
	}

	rejections, _ := f.store.ListRejections(context.Background(), lead.ID)
	if len(rejections) != 1 || rejections[0].AgentID != a1.ID || rejections[0].Reason != domain.RejectionReasonTimedOut {
		t.Fatalf("expected rejection for A1, got %+v", rejections)
	}

	assigned := f.bus.Named("leads.assigned")
	if len(assigned) != 1 || assigned[0].(events.LeadAssigned).NewAgentID != a2.ID {
		t.Fatalf("expected assignment event for A2, got %+v", assigned)
	}
}

// With no candidate left the lead expires once; a second sweep changes nothing.
func TestRunOnceExpiresExactlyOnce(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	lead := f.addLead(a1.ID, t0)
	f.clock.Set(t0.Add(16 * time.Minute))

	stats, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected one expiry, got %+v", stats)
	}
	expired := f.store.Lead(lead.ID)
	if expired.ExpiryStatus != domain.ExpiryExpired || expired.ResolutionStatus != domain.ResolutionPending {
		t.Fatalf("expected Expired with untouched resolution, got %+v", expired)
	}

	f.clock.Advance(5 * time.Minute)
	stats, err = f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expired lead must not be claimed again, got %+v", stats)
	}
	if got := len(f.bus.Named("leads.expired")); got != 1 {
		t.Fatalf("expected a single expiry event, got %d", got)
	}
}

func TestRunOnceNeverOffersLeadTwiceToSameAgent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	a2 := f.addAgent("austin")
	a3 := f.addAgent("austin")
	lead := f.addLead(a1.ID, t0)

	seen := map[uuid.UUID]bool{a1.ID: true}
	for i := 0; i < 4; i++ {
		f.clock.Set(t0.Add(16*time.Minute + time.Duration(i)*5*time.Minute))
		if _, err := f.sweeper.RunOnce(context.Background()); err != nil {
			t.Fatalf(msgUnexpectedErr, err)
		}
		current := f.store.Lead(lead.ID)
		if current.ExpiryStatus == domain.ExpiryExpired {
			break
		}
		if seen[current.AgentID] {
			t.Fatalf("agent %s offered the lead twice", current.AgentID)
		}
		seen[current.AgentID] = true
	}

	if !seen[a2.ID] || !seen[a3.ID] {
		t.Fatalf("expected both A2 and A3 to be tried, seen=%v", seen)
	}
	if got := f.store.Lead(lead.ID).ExpiryStatus; got != domain.ExpiryExpired {
		t.Fatalf("expected lead to expire after exhausting the area, got %s", got)
	}
}

// Two sweepers share the store; the second one must leave a freshly rotated
// lead to its new agent until the next cycle.
func TestRotatedLeadIsHeldUntilNextCycle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	a2 := f.addAgent("austin")
	a3 := f.addAgent("austin")
	lead := f.addLead(a1.ID, t0)
	other := NewSweeper(f.store, eligibility.New(f.directory), f.bus, logger.New("test"), DefaultConfig()).
		WithClock(f.clock.Now)

	f.clock.Set(t0.Add(16 * time.Minute))
	first, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	f.clock.Advance(time.Second)
	second, err := other.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	if first.Rotated != 1 || second.Claimed != 0 {
		t.Fatalf("expected one rotation and nothing claimed by the second sweeper, got %+v and %+v", first, second)
	}
	if got := f.store.Lead(lead.ID).AgentID; got != a2.ID {
		t.Fatalf("expected lead to stay with A2, got %s", got)
	}

	f.clock.Set(t0.Add(21 * time.Minute))
	next, err := other.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if next.Rotated != 1 || f.store.Lead(lead.ID).AgentID != a3.ID {
		t.Fatalf("expected rotation to A3 on the next cycle, got %+v", next)
	}
}

// Reassignment only moves the agent; an Unresolved lead stays Unresolved.
func TestRotationKeepsResolutionStatus(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	f.addAgent("austin")
	lead := domain.NewLead(uuid.New(), a1.ID, uuid.New(), "austin", t0)
	lead.AgentCallStatus = domain.CallNoAnswer
	lead.ResolutionStatus = domain.ResolutionUnresolved
	lead.VoicemailLeft = true
	f.store.Put(lead)

	f.clock.Set(t0.Add(16 * time.Minute))
	if _, err := f.sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	got := f.store.Lead(lead.ID)
	if got.AgentID == a1.ID {
		t.Fatal("expected the lead to rotate")
	}
	if got.ResolutionStatus != domain.ResolutionUnresolved || got.AgentCallStatus != domain.CallPending {
		t.Fatalf("expected Unresolved with a pending agent call, got %+v", got)
	}
}

func TestRunOnceIgnoresFreshAndClaimedLeads(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	f.addAgent("austin")
	fresh := f.addLead(a1.ID, t0.Add(10*time.Minute))

	claimed := domain.NewLead(uuid.New(), a1.ID, uuid.New(), "austin", t0)
	claimed.AgentCallStatus = domain.CallAnswered
	claimed.ResolutionStatus = domain.ResolutionResolved
	claimed.LifecycleStatus = domain.LifecycleConfirmedClaimed
	f.store.Put(claimed)

	f.clock.Set(t0.Add(16 * time.Minute))
	stats, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expected nothing claimed, got %+v", stats)
	}
	if f.store.Lead(fresh.ID).AgentID != a1.ID || f.store.Lead(claimed.ID).AgentID != a1.ID {
		t.Fatal("fresh and claimed leads must keep their agent")
	}
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	f := newFixture(t, cfg)
	a1 := f.addAgent("austin")
	for i := 0; i < 5; i++ {
		f.addLead(a1.ID, t0.Add(time.Duration(i)*time.Second))
	}
	f.clock.Set(t0.Add(time.Hour))

	stats, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Claimed != 2 || stats.Expired != 2 {
		t.Fatalf("expected a batch of 2, got %+v", stats)
	}

	stats, _ = f.sweeper.RunOnce(context.Background())
	if stats.Claimed != 2 {
		t.Fatalf("expected the next cycle to pick up the remainder, got %+v", stats)
	}
}

type flakyResolver struct {
	failFor uuid.UUID
	inner   AgentResolver
}

func (r flakyResolver) NextAgent(ctx context.Context, lead domain.Lead, excluded []uuid.UUID) (domain.Agent, bool, error) {
	if lead.ID == r.failFor {
		return domain.Agent{}, false, errors.New("directory timeout")
	}
	return r.inner.NextAgent(ctx, lead, excluded)
}

func TestRunOnceIsolatesPerLeadFailures(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	f.addAgent("austin")
	broken := f.addLead(a1.ID, t0)
	healthy := f.addLead(a1.ID, t0.Add(time.Second))

	f.sweeper.resolver = flakyResolver{failFor: broken.ID, inner: eligibility.New(f.directory)}
	f.clock.Set(t0.Add(16 * time.Minute))

	stats, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Failed != 1 || stats.Rotated != 1 {
		t.Fatalf("expected one failure and one rotation, got %+v", stats)
	}
	if f.store.Lead(healthy.ID).AgentID == a1.ID {
		t.Fatal("healthy lead must be rotated despite the failing one")
	}
}

type recordingArmer struct {
	armed []domain.Lead
}

func (r *recordingArmer) ArmAgentCall(_ context.Context, lead domain.Lead) error {
	r.armed = append(r.armed, lead)
	return nil
}

func TestRotationRestartsConfirmationWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RestartConfirmation = true
	f := newFixture(t, cfg)
	armer := &recordingArmer{}
	f.sweeper.WithAgentCallArmer(armer)

	a1 := f.addAgent("austin")
	a2 := f.addAgent("austin")
	f.addLead(a1.ID, t0)
	f.clock.Set(t0.Add(16 * time.Minute))

	if _, err := f.sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if len(armer.armed) != 1 || armer.armed[0].AgentID != a2.ID {
		t.Fatalf("expected agent call re-armed for A2, got %+v", armer.armed)
	}
}

func TestRotateDeclinedRecordsRejectionWhenExhausted(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a1 := f.addAgent("austin")
	lead := f.addLead(a1.ID, t0)

	result, err := f.sweeper.Rotate(context.Background(), lead, RejectionReasonDeclined, true)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if result != ResultExpired {
		t.Fatalf("expected expiry, got %s", result)
	}
	rejections, _ := f.store.ListRejections(context.Background(), lead.ID)
	if len(rejections) != 1 || rejections[0].Reason != RejectionReasonDeclined {
		t.Fatalf("expected declined rejection, got %+v", rejections)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
