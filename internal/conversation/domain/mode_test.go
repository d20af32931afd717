package domain

import (
	"testing"
	"time"

	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
)

func newAIConversation() Conversation {
	return Conversation{
		ID:      uuid.New(),
		LeadID:  uuid.New(),
		Channel: ChannelWhatsApp,
		Mode:    ModeAI,
		Status:  StatusActive,
	}
}

func TestRequestHandoffFromAI(t *testing.T) {
	c := newAIConversation()
	at := time.Now()

	if err := c.RequestHandoff("buy intent detected", at); err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}

	if c.Mode != ModeStandby || c.Status != StatusWaitingHandoff {
		t.Errorf("unexpected state after handoff request: mode=%s status=%s", c.Mode, c.Status)
	}
	if c.HandoffReason == nil || *c.HandoffReason != "buy intent detected" {
		t.Error("handoff reason not stamped")
	}
	if c.HandoffRequestedAt == nil || !c.HandoffRequestedAt.Equal(at) {
		t.Error("handoff requested-at not stamped")
	}
	if invalid := c.StateValid(); invalid != "" {
		t.Errorf("state invalid after transition: %s", invalid)
	}
}

func TestAcceptHandoffFromStandby(t *testing.T) {
	c := newAIConversation()
	consultantID := uuid.New()

	if err := c.RequestHandoff("negotiation", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := c.AcceptHandoff(consultantID, time.Now()); err != nil {
		t.Fatalf("AcceptHandoff failed: %v", err)
	}

	if c.Mode != ModeHuman || c.Status != StatusHumanAttending {
		t.Errorf("unexpected state after accept: mode=%s status=%s", c.Mode, c.Status)
	}
	if c.ConsultantID == nil || *c.ConsultantID != consultantID {
		t.Error("consultant not recorded on accept")
	}
	if c.HandoffAcceptedAt == nil {
		t.Error("accepted-at not stamped")
	}
}

func TestFinishAttendanceReturnsToAI(t *testing.T) {
	c := newAIConversation()
	if err := c.RequestHandoff("urgency", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := c.AcceptHandoff(uuid.New(), time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := c.FinishAttendance(); err != nil {
		t.Fatalf("FinishAttendance failed: %v", err)
	}

	if c.Mode != ModeAI || c.Status != StatusActive {
		t.Errorf("unexpected state after finish: mode=%s status=%s", c.Mode, c.Status)
	}
	if c.HandoffReason != nil || c.HandoffRequestedAt != nil || c.HandoffAcceptedAt != nil {
		t.Error("handoff metadata not cleared on finish")
	}
	if !c.CanRespond() {
		t.Error("AI should be able to respond after attendance finishes")
	}
}

// Drives the machine through every invalid transition from each state and
// verifies rejection with the original state preserved.
func TestInvalidTransitionsAreRejected(t *testing.T) {
	consultantID := uuid.New()

	makeStandby := func() Conversation {
		c := newAIConversation()
		_ = c.RequestHandoff("r", time.Now())
		return c
	}
	makeHuman := func() Conversation {
		c := makeStandby()
		_ = c.AcceptHandoff(consultantID, time.Now())
		return c
	}
	makeClosed := func() Conversation {
		c := newAIConversation()
		_ = c.Close()
		return c
	}

	cases := []struct {
		name string
		c    Conversation
		fire func(*Conversation) error
	}{
		{"ai cannot accept", newAIConversation(), func(c *Conversation) error { return c.AcceptHandoff(consultantID, time.Now()) }},
		{"ai cannot finish", newAIConversation(), func(c *Conversation) error { return c.FinishAttendance() }},
		{"standby cannot finish (no standby->ai)", makeStandby(), func(c *Conversation) error { return c.FinishAttendance() }},
		{"standby cannot re-request", makeStandby(), func(c *Conversation) error { return c.RequestHandoff("again", time.Now()) }},
		{"human cannot re-request (no human->standby)", makeHuman(), func(c *Conversation) error { return c.RequestHandoff("again", time.Now()) }},
		{"human cannot re-accept", makeHuman(), func(c *Conversation) error { return c.AcceptHandoff(consultantID, time.Now()) }},
		{"closed rejects handoff request", makeClosed(), func(c *Conversation) error { return c.RequestHandoff("r", time.Now()) }},
		{"closed rejects accept", makeClosed(), func(c *Conversation) error { return c.AcceptHandoff(consultantID, time.Now()) }},
		{"closed rejects finish", makeClosed(), func(c *Conversation) error { return c.FinishAttendance() }},
		{"closed rejects close", makeClosed(), func(c *Conversation) error { return c.Close() }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.c
			err := tc.fire(&tc.c)
			if err == nil {
				t.Fatal("expected rejection, got nil error")
			}
			if !apperr.Is(err, apperr.KindConflict) {
				t.Errorf("expected conflict error, got %v", err)
			}
			if tc.c.Mode != before.Mode || tc.c.Status != before.Status {
				t.Errorf("state mutated on rejected transition: mode %s->%s status %s->%s",
					before.Mode, tc.c.Mode, before.Status, tc.c.Status)
			}
		})
	}
}

// CanRespond must be true exactly when mode==ai and status==active, across
// every reachable state of the machine.
func TestCanRespondInvariant(t *testing.T) {
	c := newAIConversation()
	if !c.CanRespond() {
		t.Error("fresh conversation: AI should respond")
	}

	_ = c.RequestHandoff("r", time.Now())
	if c.CanRespond() {
		t.Error("standby: AI must not respond")
	}

	_ = c.AcceptHandoff(uuid.New(), time.Now())
	if c.CanRespond() {
		t.Error("human attending: AI must not respond")
	}

	_ = c.FinishAttendance()
	if !c.CanRespond() {
		t.Error("after finish: AI should respond")
	}

	_ = c.Close()
	if c.CanRespond() {
		t.Error("closed: AI must not respond")
	}
}

func TestStateValidCatchesContradictions(t *testing.T) {
	c := newAIConversation()
	c.Status = StatusHumanAttending
	if c.StateValid() == "" {
		t.Error("ai mode with human_attending status should be invalid")
	}

	c = newAIConversation()
	c.Mode = ModeHuman
	c.Status = StatusActive
	if c.StateValid() == "" {
		t.Error("human mode with active status should be invalid")
	}
}
