// Package domain provides core business rules for the conversation bounded
// context: the mode state machine that decides whether the AI or a human owns
// response generation.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mode identifies which party owns response generation.
const (
	ModeAI      = "ai"
	ModeStandby = "standby"
	ModeHuman   = "human"
)

// Conversation status values.
const (
	StatusActive         = "active"
	StatusWaitingHandoff = "waiting_handoff"
	StatusHumanAttending = "human_attending"
	StatusClosed         = "closed"
)

// Channel values for conversations.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
	ChannelWebchat   = "webchat"
	ChannelEmail     = "email"
)

var knownChannels = map[string]struct{}{
	ChannelWhatsApp:  {},
	ChannelInstagram: {},
	ChannelWebchat:   {},
	ChannelEmail:     {},
}

// IsKnownChannel reports whether channel is a supported messaging channel.
func IsKnownChannel(channel string) bool {
	_, ok := knownChannels[channel]
	return ok
}

// Sender roles on the message log.
const (
	SenderLead       = "lead"
	SenderAI         = "ai"
	SenderConsultant = "consultant"
	SenderSystem     = "system"
)

// Conversation identifies one ongoing exchange with a lead over one channel.
type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	LeadID             uuid.UUID  `json:"leadId"`
	Channel            string     `json:"channel"`
	Mode               string     `json:"mode"`
	Status             string     `json:"status"`
	HandoffReason      *string    `json:"handoffReason,omitempty"`
	HandoffRequestedAt *time.Time `json:"handoffRequestedAt,omitempty"`
	HandoffAcceptedAt  *time.Time `json:"handoffAcceptedAt,omitempty"`
	ConsultantID       *uuid.UUID `json:"consultantId,omitempty"`
	AITurns            int        `json:"aiTurns"`
	Version            int        `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// CanRespond reports whether the AI responder may answer on this
// conversation. This is the single gate for AI autonomy: true only while the
// AI owns the thread and the conversation is active.
func (c Conversation) CanRespond() bool {
	return c.Mode == ModeAI && c.Status == StatusActive
}

// StateValid checks the mode/status invariant. Returns a non-empty reason
// string when the combination is contradictory.
func (c Conversation) StateValid() string {
	if c.Status == StatusClosed {
		// Closed conversations retain their final mode for the record.
		return ""
	}
	switch c.Mode {
	case ModeAI:
		if c.Status != StatusActive {
			return "ai mode requires active status"
		}
	case ModeStandby:
		if c.Status != StatusWaitingHandoff {
			return "standby mode requires waiting_handoff status"
		}
	case ModeHuman:
		if c.Status != StatusWaitingHandoff && c.Status != StatusHumanAttending {
			return "human mode requires waiting_handoff or human_attending status"
		}
	default:
		return "unknown mode"
	}
	return ""
}
