// Package scheduler queues and executes background work through asynq:
// outbound channel sends and the periodic no-contact sweep.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOutboundMessage = "outbound.message"

const TaskNoContactCheck = "leads.nocontact.check"

type OutboundMessagePayload struct {
	LeadID  string `json:"leadId"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func NewOutboundMessageTask(payload OutboundMessagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboundMessage, data), nil
}

func ParseOutboundMessagePayload(task *asynq.Task) (OutboundMessagePayload, error) {
	var payload OutboundMessagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboundMessagePayload{}, err
	}
	return payload, nil
}

func NewNoContactCheckTask() *asynq.Task {
	return asynq.NewTask(TaskNoContactCheck, nil)
}
