package channel

import (
	"context"
	"fmt"

	"tripflow_backend/internal/conversation/domain"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Sender delivers one text message to a channel-specific address.
type Sender interface {
	SendMessage(ctx context.Context, address string, message string) error
}

// LeadResolver looks up the lead whose address the dispatcher needs.
type LeadResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadrepo.Lead, error)
}

// Dispatcher routes outbound messages to the sender for the lead's channel.
// A lead's stored phone field holds the channel address: an E.164 number for
// WhatsApp, a page-scoped user ID for Instagram.
type Dispatcher struct {
	leads   LeadResolver
	senders map[string]Sender
	log     *logger.Logger
}

func NewDispatcher(leads LeadResolver, whatsapp *WhatsAppClient, instagram *InstagramClient, log *logger.Logger) *Dispatcher {
	senders := make(map[string]Sender)
	if whatsapp != nil {
		senders[domain.ChannelWhatsApp] = whatsapp
	}
	if instagram != nil {
		senders[domain.ChannelInstagram] = instagram
	}
	return &Dispatcher{leads: leads, senders: senders, log: log}
}

// Dispatch sends text to the lead over the named channel.
func (d *Dispatcher) Dispatch(ctx context.Context, leadID uuid.UUID, channel, text string) error {
	sender, ok := d.senders[channel]
	if !ok {
		d.log.Warn("no sender configured for channel", "channel", channel, "leadId", leadID)
		return nil
	}

	lead, err := d.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("resolve lead for outbound: %w", err)
	}

	if err := sender.SendMessage(ctx, lead.Phone, text); err != nil {
		return fmt.Errorf("send via %s: %w", channel, err)
	}
	return nil
}
