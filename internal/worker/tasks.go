// Package worker moves dispatch outbox jobs onto the asynq queue and delivers them.
package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOrderDispatch = "orders.dispatch"

// DispatchPayload references the outbox row to deliver.
type DispatchPayload struct {
	OutboxID string `json:"outboxId"`
}

func NewDispatchTask(payload DispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderDispatch, data), nil
}

func ParseDispatchPayload(task *asynq.Task) (DispatchPayload, error) {
	var payload DispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DispatchPayload{}, err
	}
	return payload, nil
}
