// Package webhook receives inbound channel gateway deliveries and feeds them
// into the conversation orchestrator. Gateways retry, so processing is
// deduplicated by message ID before any state changes.
package webhook

import (
	"context"
	"strings"

	"tripflow_backend/internal/conversation/domain"
	convservice "tripflow_backend/internal/conversation/service"
	"tripflow_backend/internal/events"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/platform/apperr"
	"tripflow_backend/platform/logger"
	"tripflow_backend/platform/phone"

	"github.com/google/uuid"
)

const opProcess = "webhook.service.process"

// Ingestor is the conversation orchestrator's inbound entry point.
type Ingestor interface {
	IngestMessage(ctx context.Context, p convservice.IngestParams) (convservice.IngestResult, error)
}

// LeadDirectory resolves the lead a channel address belongs to.
type LeadDirectory interface {
	FindOrCreateByPhone(ctx context.Context, phone, name string) (leadrepo.Lead, bool, error)
}

// MediaStore persists inbound media referenced by gateway payloads and
// returns an attachment key for the message log.
type MediaStore interface {
	StoreFromURL(ctx context.Context, sourceURL, contentType string) (string, error)
}

// InboundMessage is a channel-neutral inbound delivery.
type InboundMessage struct {
	Channel    string
	MessageID  string
	From       string
	SenderName string
	Text       string
	MediaURL   string
	MediaMIME  string
}

// ProcessResult reports what an inbound delivery produced.
type ProcessResult struct {
	Duplicate      bool      `json:"duplicate"`
	LeadID         uuid.UUID `json:"leadId,omitempty"`
	ConversationID uuid.UUID `json:"conversationId,omitempty"`
}

type Service struct {
	dedup    *Deduper
	leads    LeadDirectory
	ingestor Ingestor
	media    MediaStore
	bus      events.Bus
	log      *logger.Logger
}

func NewService(dedup *Deduper, leads LeadDirectory, ingestor Ingestor, media MediaStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{dedup: dedup, leads: leads, ingestor: ingestor, media: media, bus: bus, log: log}
}

// ProcessInbound resolves the lead behind an inbound delivery and hands the
// message to the orchestrator. Redelivered message IDs are dropped.
func (s *Service) ProcessInbound(ctx context.Context, in InboundMessage) (ProcessResult, error) {
	if in.From == "" {
		return ProcessResult{}, apperr.Validation("sender address is required").WithOp(opProcess)
	}

	seen, err := s.dedup.Seen(ctx, in.Channel, in.MessageID)
	if err != nil {
		// Processing twice is recoverable downstream; dropping silently is not.
		s.log.Warn("dedup check failed, processing anyway", "error", err, "messageId", in.MessageID)
	}
	if seen {
		s.log.Debug("duplicate delivery dropped", "channel", in.Channel, "messageId", in.MessageID)
		return ProcessResult{Duplicate: true}, nil
	}

	address := in.From
	if in.Channel == domain.ChannelWhatsApp {
		address = phone.NormalizeE164(in.From)
	}

	name := strings.TrimSpace(in.SenderName)
	if name == "" {
		name = defaultLeadName(in.Channel)
	}

	lead, created, err := s.leads.FindOrCreateByPhone(ctx, address, name)
	if err != nil {
		return ProcessResult{}, err
	}
	if created {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Name:      lead.Name,
			Channel:   in.Channel,
			Source:    "webhook",
		})
	}

	var attachmentKey *string
	if in.MediaURL != "" && s.media != nil {
		key, mediaErr := s.media.StoreFromURL(ctx, in.MediaURL, in.MediaMIME)
		if mediaErr != nil {
			s.log.Error("inbound media store failed", "error", mediaErr, "leadId", lead.ID)
		} else {
			attachmentKey = &key
		}
	}

	res, err := s.ingestor.IngestMessage(ctx, convservice.IngestParams{
		LeadID:        lead.ID,
		Channel:       in.Channel,
		Text:          in.Text,
		SenderRole:    domain.SenderLead,
		AttachmentKey: attachmentKey,
	})
	if err != nil {
		return ProcessResult{}, err
	}

	return ProcessResult{
		LeadID:         lead.ID,
		ConversationID: res.Conversation.ID,
	}, nil
}

func defaultLeadName(channel string) string {
	switch channel {
	case domain.ChannelInstagram:
		return "Lead Instagram"
	default:
		return "Lead WhatsApp"
	}
}
