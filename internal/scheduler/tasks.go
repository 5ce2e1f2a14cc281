package scheduler

import (
	"encoding/json"
	"fmt"

	"tour_portal_backend/internal/leads/ports"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskBuyerConfirm   = "leads:buyer_confirm"
	TaskAgentCall      = "leads:agent_call"
	TaskVoicemailCheck = "leads:voicemail_check"
)

var taskTypes = map[ports.Step]string{
	ports.StepBuyerConfirm: TaskBuyerConfirm,
	ports.StepAgentCall:    TaskAgentCall,
	ports.StepVoicemail:    TaskVoicemailCheck,
}

// StepPayload identifies the lead and the agent assignment a step belongs to.
type StepPayload struct {
	LeadID  string `json:"leadId"`
	AgentID string `json:"agentId"`
}

// TaskTypeFor returns the asynq task type for a confirmation step.
func TaskTypeFor(step ports.Step) (string, error) {
	taskType, ok := taskTypes[step]
	if !ok {
		return "", fmt.Errorf("unknown confirmation step %q", step)
	}
	return taskType, nil
}

// TaskIDFor is the deduplication key of a step: one task per step, lead and agent.
func TaskIDFor(task ports.StepTask) string {
	return fmt.Sprintf("%s:%s:%s", task.Step, task.LeadID, task.AgentID)
}

func NewStepTask(task ports.StepTask) (*asynq.Task, error) {
	taskType, err := TaskTypeFor(task.Step)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(StepPayload{
		LeadID:  task.LeadID.String(),
		AgentID: task.AgentID.String(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// ParseStepPayload decodes and validates the ids carried by a step task.
func ParseStepPayload(task *asynq.Task) (leadID, agentID uuid.UUID, err error) {
	var payload StepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if leadID, err = uuid.Parse(payload.LeadID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid leadId: %w", err)
	}
	if agentID, err = uuid.Parse(payload.AgentID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid agentId: %w", err)
	}
	return leadID, agentID, nil
}
