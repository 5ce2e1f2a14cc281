package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tour_portal_backend/internal/leads/confirmation"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/eligibility"
	"tour_portal_backend/internal/leads/leadstest"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/internal/leads/rotation"
	"tour_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const msgUnexpectedErr = "unexpected error: %v"

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func optionValue(opts []asynq.Option, typ asynq.OptionType) (interface{}, bool) {
	for _, opt := range opts {
		if opt.Type() == typ {
			return opt.Value(), true
		}
	}
	return nil, false
}

func TestScheduleEnqueuesDedupedTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := &Client{client: enq, queue: "tours"}
	runAt := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	task := ports.StepTask{Step: ports.StepAgentCall, LeadID: uuid.New(), AgentID: uuid.New(), RunAt: runAt}

	if err := client.Schedule(context.Background(), task); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskAgentCall {
		t.Fatalf("expected one %s task, got %+v", TaskAgentCall, enq.tasks)
	}
	id, ok := optionValue(enq.opts[0], asynq.TaskIDOpt)
	if !ok || id != fmt.Sprintf("agent_call:%s:%s", task.LeadID, task.AgentID) {
		t.Fatalf("unexpected task id %v", id)
	}
	at, ok := optionValue(enq.opts[0], asynq.ProcessAtOpt)
	if !ok || !at.(time.Time).Equal(runAt) {
		t.Fatalf("unexpected process at %v", at)
	}
	queue, _ := optionValue(enq.opts[0], asynq.QueueOpt)
	if queue != "tours" {
		t.Fatalf("unexpected queue %v", queue)
	}

	leadID, agentID, err := ParseStepPayload(enq.tasks[0])
	if err != nil || leadID != task.LeadID || agentID != task.AgentID {
		t.Fatalf("payload round trip failed: %v %s %s", err, leadID, agentID)
	}
}

func TestScheduleTreatsDuplicateAsSuccess(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, queue: "default"}

	err := client.Schedule(context.Background(), ports.StepTask{Step: ports.StepVoicemail, LeadID: uuid.New(), AgentID: uuid.New()})
	if err != nil {
		t.Fatalf("expected duplicate to be ignored, got %v", err)
	}
}

func TestScheduleReportsEnqueueFailure(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: errors.New("redis down")}, queue: "default"}

	err := client.Schedule(context.Background(), ports.StepTask{Step: ports.StepBuyerConfirm, LeadID: uuid.New(), AgentID: uuid.New()})
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
}

func TestScheduleRejectsUnknownStep(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{}, queue: "default"}

	if err := client.Schedule(context.Background(), ports.StepTask{Step: "bogus"}); err == nil {
		t.Fatal("expected unknown step to fail")
	}
}

type recordingSteps struct {
	calls []string
	err   error
}

func (r *recordingSteps) HandleBuyerConfirmDue(_ context.Context, leadID uuid.UUID) error {
	r.calls = append(r.calls, "buyer:"+leadID.String())
	return r.err
}

func (r *recordingSteps) HandleAgentCallDue(_ context.Context, leadID, agentID uuid.UUID) error {
	r.calls = append(r.calls, "agent:"+leadID.String()+":"+agentID.String())
	return r.err
}

func (r *recordingSteps) HandleVoicemailDue(_ context.Context, leadID, agentID uuid.UUID) error {
	r.calls = append(r.calls, "voicemail:"+leadID.String()+":"+agentID.String())
	return r.err
}

func TestMuxDispatchesSteps(t *testing.T) {
	steps := &recordingSteps{}
	mux := newMux(steps, logger.New("test"))
	leadID, agentID := uuid.New(), uuid.New()

	for _, step := range []ports.Step{ports.StepBuyerConfirm, ports.StepAgentCall, ports.StepVoicemail} {
		task, err := NewStepTask(ports.StepTask{Step: step, LeadID: leadID, AgentID: agentID})
		if err != nil {
			t.Fatalf(msgUnexpectedErr, err)
		}
		if err := mux.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf(msgUnexpectedErr, err)
		}
	}

	want := []string{
		"buyer:" + leadID.String(),
		"agent:" + leadID.String() + ":" + agentID.String(),
		"voicemail:" + leadID.String() + ":" + agentID.String(),
	}
	if len(steps.calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, steps.calls)
	}
	for i := range want {
		if steps.calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, steps.calls)
		}
	}
}

func TestMuxSkipsMalformedPayload(t *testing.T) {
	steps := &recordingSteps{}
	mux := newMux(steps, logger.New("test"))

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskAgentCall, []byte(`{"leadId":"nope"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(steps.calls) != 0 {
		t.Fatal("expected no step to run")
	}
}

func TestRetryDelayForTooEarly(t *testing.T) {
	task := asynq.NewTask(TaskAgentCall, nil)
	if got := retryDelay(1, fmt.Errorf("wrapped: %w", confirmation.ErrTooEarly), task); got != tooEarlyRetryDelay {
		t.Fatalf("expected %s, got %s", tooEarlyRetryDelay, got)
	}
}

type armRecorder struct {
	scheduler *leadstest.Scheduler
}

func (a armRecorder) ArmAgentCall(ctx context.Context, lead domain.Lead) error {
	return a.scheduler.Schedule(ctx, ports.StepTask{Step: ports.StepAgentCall, LeadID: lead.ID, AgentID: lead.AgentID})
}

func TestConfirmationRecoveryRearmsPendingAgentCalls(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := leadstest.NewClock(t0)
	store := leadstest.NewStore(clock.Now)

	stranded := domain.NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", t0)
	called := domain.NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", t0)
	called.AgentCallStatus = domain.CallRinging
	fresh := domain.NewLead(uuid.New(), uuid.New(), uuid.New(), "austin", t0.Add(9*time.Minute))
	store.Put(stranded)
	store.Put(called)
	store.Put(fresh)

	sched := &leadstest.Scheduler{}
	recovery := NewConfirmationRecovery(store, armRecorder{scheduler: sched}, logger.New("test"), time.Minute, 2*time.Minute, 5*time.Minute)
	recovery.now = clock.Now
	clock.Advance(10 * time.Minute)

	if got := recovery.recover(context.Background()); got != 1 {
		t.Fatalf("expected one re-armed lead, got %d", got)
	}
	task, ok := sched.Find(ports.StepAgentCall)
	if !ok || task.LeadID != stranded.ID {
		t.Fatalf("expected agent call re-armed for %s, got %+v", stranded.ID, task)
	}
}

// A lead handed to a new agent by the sweep is only dialed again when rotation
// restarts the confirmation phase.
func TestConfirmationRecoverySkipsRotatedLeads(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := leadstest.NewClock(t0)
	store := leadstest.NewStore(clock.Now)
	directory := leadstest.NewDirectory()
	a1 := domain.Agent{ID: uuid.New(), ServiceArea: "austin"}
	a2 := domain.Agent{ID: uuid.New(), ServiceArea: "austin"}
	directory.AddAgent(a1)
	directory.AddAgent(a2)

	lead := domain.NewLead(uuid.New(), a1.ID, uuid.New(), "austin", t0)
	store.Put(lead)

	sweeper := rotation.NewSweeper(store, eligibility.New(directory), &leadstest.Bus{}, logger.New("test"), rotation.DefaultConfig()).
		WithClock(clock.Now)
	clock.Set(t0.Add(16 * time.Minute))
	stats, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stats.Rotated != 1 {
		t.Fatalf("expected the lead to rotate, got %+v", stats)
	}
	clock.Advance(time.Minute)

	baseline := &leadstest.Scheduler{}
	recovery := NewConfirmationRecovery(store, armRecorder{scheduler: baseline}, logger.New("test"), time.Minute, 2*time.Minute, 5*time.Minute)
	recovery.now = clock.Now
	if got := recovery.recover(context.Background()); got != 0 {
		t.Fatalf("expected no re-armed leads, got %d", got)
	}
	if len(baseline.Tasks) != 0 {
		t.Fatalf("expected no agent call for the new agent, got %+v", baseline.Tasks)
	}

	restart := &leadstest.Scheduler{}
	recovery = NewConfirmationRecovery(store, armRecorder{scheduler: restart}, logger.New("test"), time.Minute, 2*time.Minute, 5*time.Minute).
		WithRotatedLeads(true)
	recovery.now = clock.Now
	if got := recovery.recover(context.Background()); got != 1 {
		t.Fatalf("expected the rotated lead to be re-armed, got %d", got)
	}
	task, ok := restart.Find(ports.StepAgentCall)
	if !ok || task.AgentID != a2.ID {
		t.Fatalf("expected agent call for %s, got %+v", a2.ID, task)
	}
}
