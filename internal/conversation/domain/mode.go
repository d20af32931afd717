package domain

import (
	"time"

	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// The mode state machine has exactly three transitions. Every return to AI
// must pass through an explicit consultant close, so there is no standby→ai
// or human→standby edge: a paused AI can never silently resume mid-handoff.

// RequestHandoff moves an AI-owned conversation to standby. Fired the instant
// a handoff is decided by scoring or mandated by a stage transition.
func (c *Conversation) RequestHandoff(reason string, at time.Time) error {
	if c.Status == StatusClosed {
		return apperr.Conflict("conversation is closed")
	}
	if c.Mode != ModeAI {
		return apperr.Conflict("handoff can only be requested while the AI owns the conversation")
	}

	c.Mode = ModeStandby
	c.Status = StatusWaitingHandoff
	c.HandoffReason = &reason
	c.HandoffRequestedAt = &at
	c.HandoffAcceptedAt = nil
	return nil
}

// AcceptHandoff moves a standby conversation to human ownership when a
// consultant explicitly accepts.
func (c *Conversation) AcceptHandoff(consultantID uuid.UUID, at time.Time) error {
	if c.Status == StatusClosed {
		return apperr.Conflict("conversation is closed")
	}
	if c.Mode != ModeStandby {
		return apperr.Conflict("no pending handoff to accept")
	}

	c.Mode = ModeHuman
	c.Status = StatusHumanAttending
	c.HandoffAcceptedAt = &at
	c.ConsultantID = &consultantID
	return nil
}

// FinishAttendance returns a human-owned conversation to the AI when the
// consultant explicitly closes their attendance.
func (c *Conversation) FinishAttendance() error {
	if c.Status == StatusClosed {
		return apperr.Conflict("conversation is closed")
	}
	if c.Mode != ModeHuman {
		return apperr.Conflict("no human attendance to finish")
	}

	c.Mode = ModeAI
	c.Status = StatusActive
	c.HandoffReason = nil
	c.HandoffRequestedAt = nil
	c.HandoffAcceptedAt = nil
	return nil
}

// Close terminates the conversation. Closed conversations accept no further
// transitions; the record is retained, never deleted.
func (c *Conversation) Close() error {
	if c.Status == StatusClosed {
		return apperr.Conflict("conversation already closed")
	}
	c.Status = StatusClosed
	return nil
}
