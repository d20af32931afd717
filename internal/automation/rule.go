// Package automation implements the condition→action rule engine driven by
// domain events. Rules are authored by operators and read-only here; the
// engine evaluates conditions against event payloads and executes actions.
package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action kinds form a closed set. Parameters are decoded into the matching
// typed struct once at rule-load time, not re-parsed per evaluation.
const (
	ActionCreateTask       = "create-task"
	ActionSendNotification = "send-notification"
	ActionUpdateScore      = "update-score"
	ActionMoveStage        = "move-stage"
	ActionAssignConsultant = "assign-consultant"
)

// Condition is one field test. All of a rule's conditions must hold (logical
// AND only, no OR or grouping). Field is a dotted path into the event payload.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Condition operators.
const (
	OpEquals      = "eq"
	OpNotEquals   = "neq"
	OpGreaterThan = "gt"
	OpGreaterEq   = "gte"
	OpLessThan    = "lt"
	OpLessEq      = "lte"
	OpContains    = "contains"
	OpExists      = "exists"
)

// CreateTaskParams creates a follow-up task for the lead's consultant.
type CreateTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueInHours  int    `json:"dueInHours"`
}

// SendNotificationParams raises an in-app notification for consultants.
type SendNotificationParams struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// UpdateScoreParams adds Delta to the lead score, clamped to [0,100].
type UpdateScoreParams struct {
	Delta int `json:"delta"`
}

// MoveStageParams moves the lead directly to Stage, bypassing the message
// resolver. Used for operator-authored automations.
type MoveStageParams struct {
	Stage string `json:"stage"`
}

// AssignConsultantParams assigns the lead. An empty ConsultantID means
// least-loaded selection.
type AssignConsultantParams struct {
	ConsultantID string `json:"consultantId"`
}

// Action is a tagged union: Kind selects which params pointer is set.
type Action struct {
	Kind string

	CreateTask       *CreateTaskParams
	SendNotification *SendNotificationParams
	UpdateScore      *UpdateScoreParams
	MoveStage        *MoveStageParams
	AssignConsultant *AssignConsultantParams
}

// Rule is one active automation: trigger, AND-ed conditions, ordered actions.
type Rule struct {
	ID         uuid.UUID
	Name       string
	Trigger    string
	Conditions []Condition
	Actions    []Action
	Active     bool
	CreatedAt  time.Time
}

// storedAction is the persisted JSON shape of one action.
type storedAction struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// DecodeActions parses the persisted action list into the typed union.
// Unknown kinds and malformed params are load-time errors so a broken rule
// never reaches evaluation.
func DecodeActions(raw []byte) ([]Action, error) {
	var stored []storedAction
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}

	out := make([]Action, 0, len(stored))
	for i, sa := range stored {
		a := Action{Kind: sa.Kind}
		var err error
		switch sa.Kind {
		case ActionCreateTask:
			a.CreateTask = &CreateTaskParams{}
			err = unmarshalParams(sa.Params, a.CreateTask)
		case ActionSendNotification:
			a.SendNotification = &SendNotificationParams{}
			err = unmarshalParams(sa.Params, a.SendNotification)
		case ActionUpdateScore:
			a.UpdateScore = &UpdateScoreParams{}
			err = unmarshalParams(sa.Params, a.UpdateScore)
		case ActionMoveStage:
			a.MoveStage = &MoveStageParams{}
			err = unmarshalParams(sa.Params, a.MoveStage)
		case ActionAssignConsultant:
			a.AssignConsultant = &AssignConsultantParams{}
			err = unmarshalParams(sa.Params, a.AssignConsultant)
		default:
			return nil, fmt.Errorf("decode actions: unknown kind %q at index %d", sa.Kind, i)
		}
		if err != nil {
			return nil, fmt.Errorf("decode actions: %q at index %d: %w", sa.Kind, i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func unmarshalParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// DecodeConditions parses the persisted condition list.
func DecodeConditions(raw []byte) ([]Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []Condition
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return out, nil
}
