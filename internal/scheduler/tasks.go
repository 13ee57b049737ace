package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskAssignLead runs one lead through the rotation in the worker.
const TaskAssignLead = "rotation.assign_lead"

type AssignLeadPayload struct {
	TenantID string  `json:"tenantId"`
	LeadID   string  `json:"leadId"`
	Origin   *string `json:"origin,omitempty"`
}

func NewAssignLeadTask(payload AssignLeadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignLead, data), nil
}

func ParseAssignLeadPayload(task *asynq.Task) (AssignLeadPayload, error) {
	var payload AssignLeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AssignLeadPayload{}, err
	}
	return payload, nil
}

// assignTaskID dedupes queued work per lead while it is pending or retrying.
func assignTaskID(tenantID, leadID string) string {
	return "assign:" + tenantID + ":" + leadID
}
