package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRuleSource struct {
	rules []Rule
}

func (f *fakeRuleSource) ListActiveByTrigger(_ context.Context, trigger string) ([]Rule, error) {
	var out []Rule
	for _, r := range f.rules {
		if r.Trigger == trigger {
			out = append(out, r)
		}
	}
	return out, nil
}

// recorder implements every action port and logs execution order.
type recorder struct {
	order         []string
	failTaskCalls bool
	notifications []string
	scores        []int
	stages        []string
	assigned      []uuid.UUID
}

func (r *recorder) CreateTask(_ context.Context, _ uuid.UUID, title, _ string, _ time.Time) error {
	r.order = append(r.order, "create-task")
	if r.failTaskCalls {
		return errors.New("task store down")
	}
	return nil
}

func (r *recorder) NotifyConsultants(_ context.Context, title, message, _ string) error {
	r.order = append(r.order, "send-notification")
	r.notifications = append(r.notifications, title+"|"+message)
	return nil
}

func (r *recorder) AddScore(_ context.Context, _ uuid.UUID, delta int) (int, error) {
	r.order = append(r.order, "update-score")
	r.scores = append(r.scores, delta)
	return delta, nil
}

func (r *recorder) MoveStage(_ context.Context, _ uuid.UUID, stage string) error {
	r.order = append(r.order, "move-stage")
	r.stages = append(r.stages, stage)
	return nil
}

func (r *recorder) AssignLead(_ context.Context, leadID uuid.UUID, _ *uuid.UUID) error {
	r.order = append(r.order, "assign-consultant")
	r.assigned = append(r.assigned, leadID)
	return nil
}

func newTestEngine(rules []Rule) (*Engine, *recorder) {
	rec := &recorder{}
	e := NewEngine(&fakeRuleSource{rules: rules}, rec, rec, rec, rec, rec, logger.New("development"))
	return e, rec
}

type testPayload struct {
	LeadID   uuid.UUID `json:"leadId"`
	Name     string    `json:"name"`
	NewStage string    `json:"newStage"`
	Score    int       `json:"score"`
}

func TestEmptyConditionListAlwaysFires(t *testing.T) {
	e, rec := newTestEngine([]Rule{{
		ID:      uuid.New(),
		Name:    "welcome",
		Trigger: "lead.created",
		Actions: []Action{{Kind: ActionUpdateScore, UpdateScore: &UpdateScoreParams{Delta: 5}}},
		Active:  true,
	}})

	if err := e.HandleTrigger(context.Background(), "lead.created", testPayload{LeadID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	if len(rec.scores) != 1 || rec.scores[0] != 5 {
		t.Errorf("score action did not fire: %v", rec.scores)
	}
}

func TestFailingConditionNeverFires(t *testing.T) {
	e, rec := newTestEngine([]Rule{{
		ID:      uuid.New(),
		Name:    "vip",
		Trigger: "lead.stage_changed",
		Conditions: []Condition{
			{Field: "newStage", Operator: OpEquals, Value: "Negotiating"},
			{Field: "score", Operator: OpGreaterThan, Value: "70"},
		},
		Actions: []Action{{Kind: ActionSendNotification, SendNotification: &SendNotificationParams{Title: "VIP"}}},
		Active:  true,
	}})

	// Second condition fails: score is not above 70.
	payload := testPayload{LeadID: uuid.New(), NewStage: "Negotiating", Score: 50}
	if err := e.HandleTrigger(context.Background(), "lead.stage_changed", payload); err != nil {
		t.Fatal(err)
	}
	if len(rec.notifications) != 0 {
		t.Errorf("rule fired despite failing condition: %v", rec.notifications)
	}

	// Both hold now.
	payload.Score = 90
	if err := e.HandleTrigger(context.Background(), "lead.stage_changed", payload); err != nil {
		t.Fatal(err)
	}
	if len(rec.notifications) != 1 {
		t.Errorf("rule did not fire with all conditions holding: %v", rec.notifications)
	}
}

func TestActionsExecuteInDeclaredOrder(t *testing.T) {
	e, rec := newTestEngine([]Rule{{
		ID:      uuid.New(),
		Name:    "multi",
		Trigger: "proposal.sent",
		Actions: []Action{
			{Kind: ActionUpdateScore, UpdateScore: &UpdateScoreParams{Delta: 10}},
			{Kind: ActionMoveStage, MoveStage: &MoveStageParams{Stage: "Negotiating"}},
			{Kind: ActionSendNotification, SendNotification: &SendNotificationParams{Title: "sent"}},
		},
		Active: true,
	}})

	if err := e.HandleTrigger(context.Background(), "proposal.sent", testPayload{LeadID: uuid.New()}); err != nil {
		t.Fatal(err)
	}

	want := []string{"update-score", "move-stage", "send-notification"}
	if len(rec.order) != len(want) {
		t.Fatalf("order = %v, want %v", rec.order, want)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Errorf("action %d = %q, want %q", i, rec.order[i], want[i])
		}
	}
}

func TestActionFailureDoesNotAbortSiblings(t *testing.T) {
	e, rec := newTestEngine([]Rule{{
		ID:      uuid.New(),
		Name:    "resilient",
		Trigger: "lead.no_contact",
		Actions: []Action{
			{Kind: ActionCreateTask, CreateTask: &CreateTaskParams{Title: "follow up"}},
			{Kind: ActionUpdateScore, UpdateScore: &UpdateScoreParams{Delta: -5}},
		},
		Active: true,
	}})
	rec.failTaskCalls = true

	if err := e.HandleTrigger(context.Background(), "lead.no_contact", testPayload{LeadID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	if len(rec.scores) != 1 || rec.scores[0] != -5 {
		t.Errorf("sibling action aborted by earlier failure: %v", rec.scores)
	}
}

func TestPlaceholderSubstitution(t *testing.T) {
	e, rec := newTestEngine([]Rule{{
		ID:      uuid.New(),
		Name:    "greeting",
		Trigger: "lead.created",
		Actions: []Action{{
			Kind: ActionSendNotification,
			SendNotification: &SendNotificationParams{
				Title:   "Novo lead: {{name}}",
				Message: "{{name}} entrou no estágio {{newStage}} ({{missing.path}})",
			},
		}},
		Active: true,
	}})

	payload := testPayload{LeadID: uuid.New(), Name: "Marina", NewStage: "New"}
	if err := e.HandleTrigger(context.Background(), "lead.created", payload); err != nil {
		t.Fatal(err)
	}
	if len(rec.notifications) != 1 {
		t.Fatal("notification not sent")
	}
	want := "Novo lead: Marina|Marina entrou no estágio New ({{missing.path}})"
	if rec.notifications[0] != want {
		t.Errorf("substitution = %q, want %q", rec.notifications[0], want)
	}
}

func TestConditionOperators(t *testing.T) {
	body := `{"score": 75, "name": "Marina Silva", "newStage": "Qualifying"}`

	cases := []struct {
		cond Condition
		want bool
	}{
		{Condition{Field: "newStage", Operator: OpEquals, Value: "Qualifying"}, true},
		{Condition{Field: "newStage", Operator: OpNotEquals, Value: "New"}, true},
		{Condition{Field: "score", Operator: OpGreaterThan, Value: "70"}, true},
		{Condition{Field: "score", Operator: OpGreaterThan, Value: "75"}, false},
		{Condition{Field: "score", Operator: OpGreaterEq, Value: "75"}, true},
		{Condition{Field: "score", Operator: OpLessThan, Value: "80"}, true},
		{Condition{Field: "score", Operator: OpLessEq, Value: "74"}, false},
		{Condition{Field: "name", Operator: OpContains, Value: "silva"}, true},
		{Condition{Field: "name", Operator: OpExists, Value: ""}, true},
		{Condition{Field: "email", Operator: OpExists, Value: ""}, false},
		{Condition{Field: "email", Operator: OpEquals, Value: "x"}, false},
		{Condition{Field: "score", Operator: "bogus", Value: "1"}, false},
	}
	for _, tc := range cases {
		if got := evaluateCondition(body, tc.cond); got != tc.want {
			t.Errorf("evaluateCondition(%+v) = %v, want %v", tc.cond, got, tc.want)
		}
	}
}

func TestDecodeActionsRejectsUnknownKind(t *testing.T) {
	_, err := DecodeActions([]byte(`[{"kind":"format-disk","params":{}}]`))
	if err == nil {
		t.Error("unknown action kind must fail at load time")
	}
}

func TestDecodeActionsTypedUnion(t *testing.T) {
	raw := []byte(`[
		{"kind":"update-score","params":{"delta":15}},
		{"kind":"move-stage","params":{"stage":"Qualifying"}},
		{"kind":"create-task","params":{"title":"Ligar","dueInHours":24}}
	]`)
	actions, err := DecodeActions(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("decoded %d actions", len(actions))
	}
	if actions[0].UpdateScore == nil || actions[0].UpdateScore.Delta != 15 {
		t.Error("update-score params not decoded")
	}
	if actions[1].MoveStage == nil || actions[1].MoveStage.Stage != "Qualifying" {
		t.Error("move-stage params not decoded")
	}
	if actions[2].CreateTask == nil || actions[2].CreateTask.DueInHours != 24 {
		t.Error("create-task params not decoded")
	}
}
