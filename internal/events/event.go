// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"tripflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Trigger names form the closed set of automation rule triggers.
const (
	TriggerLeadCreated      = "lead.created"
	TriggerLeadStageChanged = "lead.stage_changed"
	TriggerLeadNoContact    = "lead.no_contact"
	TriggerProposalSent     = "proposal.sent"
	TriggerProposalViewed   = "proposal.viewed"
)

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when a new lead enters the pipeline.
type LeadCreated struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Name    string    `json:"name"`
	Channel string    `json:"channel"`
	Source  string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return TriggerLeadCreated }

// LeadStageChanged is published when a lead's pipeline stage changes,
// whether resolved from a message or moved directly by an automation.
type LeadStageChanged struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	OldStage       string     `json:"oldStage"`
	NewStage       string     `json:"newStage"`
	Confidence     float64    `json:"confidence,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

func (e LeadStageChanged) EventName() string { return TriggerLeadStageChanged }

// LeadNoContact is published by the scheduler when a lead has had no
// contact for the configured window.
type LeadNoContact struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	HoursSilent  int       `json:"hoursSilent"`
	CurrentStage string    `json:"currentStage"`
}

func (e LeadNoContact) EventName() string { return TriggerLeadNoContact }

// ProposalSent is published by the proposal collaborator when a proposal
// goes out to a lead.
type ProposalSent struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	ProposalID   uuid.UUID  `json:"proposalId"`
	ConsultantID *uuid.UUID `json:"consultantId,omitempty"`
}

func (e ProposalSent) EventName() string { return TriggerProposalSent }

// ProposalViewed is published when a lead first opens a proposal link.
type ProposalViewed struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	ProposalID uuid.UUID `json:"proposalId"`
}

func (e ProposalViewed) EventName() string { return TriggerProposalViewed }

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationMessageReceived is published after an inbound message has been
// committed to the conversation log.
type ConversationMessageReceived struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	Channel        string    `json:"channel"`
	SenderRole     string    `json:"senderRole"`
	Text           string    `json:"text"`
}

func (e ConversationMessageReceived) EventName() string { return "conversation.message.received" }

// ConversationModeChanged is published after a committed mode transition.
type ConversationModeChanged struct {
	BaseEvent
	ConversationID uuid.UUID  `json:"conversationId"`
	LeadID         uuid.UUID  `json:"leadId"`
	OldMode        string     `json:"oldMode"`
	NewMode        string     `json:"newMode"`
	ConsultantID   *uuid.UUID `json:"consultantId,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

func (e ConversationModeChanged) EventName() string { return "conversation.mode.changed" }

// HandoffRequested is published when a conversation moves to standby and a
// human pickup is awaited.
type HandoffRequested struct {
	BaseEvent
	ConversationID uuid.UUID  `json:"conversationId"`
	LeadID         uuid.UUID  `json:"leadId"`
	Reason         string     `json:"reason"`
	Priority       string     `json:"priority"`
	ConsultantID   *uuid.UUID `json:"consultantId,omitempty"`
}

func (e HandoffRequested) EventName() string { return "conversation.handoff.requested" }

// HandoffAccepted is published when a consultant takes over a conversation.
type HandoffAccepted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	ConsultantID   uuid.UUID `json:"consultantId"`
}

func (e HandoffAccepted) EventName() string { return "conversation.handoff.accepted" }

// HumanAttendanceFinished is published when a consultant returns a
// conversation to the AI.
type HumanAttendanceFinished struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	ConsultantID   uuid.UUID `json:"consultantId"`
}

func (e HumanAttendanceFinished) EventName() string { return "conversation.attendance.finished" }

// AssignmentExhausted is published when a handoff could not be assigned to
// any consultant. Operator attention is required.
type AssignmentExhausted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	Priority       string    `json:"priority"`
	Reason         string    `json:"reason"`
}

func (e AssignmentExhausted) EventName() string { return "conversation.assignment.exhausted" }
