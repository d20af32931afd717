package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// RuleSource loads active rules for a trigger.
type RuleSource interface {
	ListActiveByTrigger(ctx context.Context, trigger string) ([]Rule, error)
}

// TaskCreator records a follow-up task against a lead.
type TaskCreator interface {
	CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueAt time.Time) error
}

// Notifier raises a consultant-facing notification.
type Notifier interface {
	NotifyConsultants(ctx context.Context, title, message, link string) error
}

// LeadScorer applies an additive score change, clamped to [0,100].
type LeadScorer interface {
	AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// StageMover moves a lead's stage directly, bypassing message resolution.
type StageMover interface {
	MoveStage(ctx context.Context, leadID uuid.UUID, stage string) error
}

// LeadAssigner assigns a lead to a consultant. A nil consultantID requests
// least-loaded selection.
type LeadAssigner interface {
	AssignLead(ctx context.Context, leadID uuid.UUID, consultantID *uuid.UUID) error
}

// Engine evaluates rules against event payloads. Stateless between calls;
// constructed with its collaborators injected so tests can use doubles.
type Engine struct {
	rules    RuleSource
	tasks    TaskCreator
	notifier Notifier
	scorer   LeadScorer
	mover    StageMover
	assigner LeadAssigner
	log      *logger.Logger
}

func NewEngine(rules RuleSource, tasks TaskCreator, notifier Notifier, scorer LeadScorer, mover StageMover, assigner LeadAssigner, log *logger.Logger) *Engine {
	return &Engine{
		rules:    rules,
		tasks:    tasks,
		notifier: notifier,
		scorer:   scorer,
		mover:    mover,
		assigner: assigner,
		log:      log,
	}
}

// HandleTrigger runs every active rule for the trigger against the payload.
// The payload is marshaled once; condition fields and placeholders resolve
// against it with dotted paths. One action's failure is logged and does not
// abort sibling actions or later rules.
func (e *Engine) HandleTrigger(ctx context.Context, trigger string, payload interface{}) error {
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for trigger %s: %w", trigger, err)
	}
	body := string(doc)

	rules, err := e.rules.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return fmt.Errorf("load rules for trigger %s: %w", trigger, err)
	}

	leadID, hasLead := payloadLeadID(body)

	for _, rule := range rules {
		if !conditionsHold(body, rule.Conditions) {
			continue
		}
		e.log.Info("automation rule fired", "rule", rule.Name, "trigger", trigger)

		for i, action := range rule.Actions {
			if err := e.execute(ctx, action, body, leadID, hasLead); err != nil {
				e.log.Error("automation action failed",
					"rule", rule.Name, "rule_id", rule.ID,
					"action", action.Kind, "action_index", i,
					"error", err)
			}
		}
	}
	return nil
}

func payloadLeadID(body string) (uuid.UUID, bool) {
	raw := gjson.Get(body, "leadId").String()
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// conditionsHold applies the AND-only semantics: every condition must pass,
// and an empty list always holds.
func conditionsHold(body string, conditions []Condition) bool {
	for _, c := range conditions {
		if !evaluateCondition(body, c) {
			return false
		}
	}
	return true
}

func evaluateCondition(body string, c Condition) bool {
	val := gjson.Get(body, c.Field)

	switch c.Operator {
	case OpExists:
		return val.Exists()
	case OpEquals:
		return val.Exists() && val.String() == c.Value
	case OpNotEquals:
		return !val.Exists() || val.String() != c.Value
	case OpContains:
		return val.Exists() && strings.Contains(strings.ToLower(val.String()), strings.ToLower(c.Value))
	case OpGreaterThan, OpGreaterEq, OpLessThan, OpLessEq:
		if !val.Exists() {
			return false
		}
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return false
		}
		got := val.Float()
		switch c.Operator {
		case OpGreaterThan:
			return got > want
		case OpGreaterEq:
			return got >= want
		case OpLessThan:
			return got < want
		default:
			return got <= want
		}
	default:
		return false
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// substitute replaces {{path}} tokens with values from the event payload just
// before execution. Unresolvable tokens are left in place.
func substitute(s, body string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(tok string) string {
		path := placeholderPattern.FindStringSubmatch(tok)[1]
		val := gjson.Get(body, path)
		if !val.Exists() {
			return tok
		}
		return val.String()
	})
}

func (e *Engine) execute(ctx context.Context, a Action, body string, leadID uuid.UUID, hasLead bool) error {
	switch a.Kind {
	case ActionCreateTask:
		if e.tasks == nil {
			return fmt.Errorf("no task creator configured")
		}
		if !hasLead {
			return fmt.Errorf("payload has no leadId")
		}
		due := time.Now().Add(time.Duration(a.CreateTask.DueInHours) * time.Hour)
		return e.tasks.CreateTask(ctx, leadID,
			substitute(a.CreateTask.Title, body),
			substitute(a.CreateTask.Description, body),
			due)

	case ActionSendNotification:
		if e.notifier == nil {
			return fmt.Errorf("no notifier configured")
		}
		return e.notifier.NotifyConsultants(ctx,
			substitute(a.SendNotification.Title, body),
			substitute(a.SendNotification.Message, body),
			substitute(a.SendNotification.Link, body))

	case ActionUpdateScore:
		if e.scorer == nil {
			return fmt.Errorf("no scorer configured")
		}
		if !hasLead {
			return fmt.Errorf("payload has no leadId")
		}
		_, err := e.scorer.AddScore(ctx, leadID, a.UpdateScore.Delta)
		return err

	case ActionMoveStage:
		if e.mover == nil {
			return fmt.Errorf("no stage mover configured")
		}
		if !hasLead {
			return fmt.Errorf("payload has no leadId")
		}
		return e.mover.MoveStage(ctx, leadID, a.MoveStage.Stage)

	case ActionAssignConsultant:
		if e.assigner == nil {
			return fmt.Errorf("no assigner configured")
		}
		if !hasLead {
			return fmt.Errorf("payload has no leadId")
		}
		var consultantID *uuid.UUID
		if a.AssignConsultant.ConsultantID != "" {
			id, err := uuid.Parse(a.AssignConsultant.ConsultantID)
			if err != nil {
				return fmt.Errorf("invalid consultant id in rule params: %w", err)
			}
			consultantID = &id
		}
		return e.assigner.AssignLead(ctx, leadID, consultantID)

	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}
