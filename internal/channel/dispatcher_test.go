package channel

import (
	"context"
	"errors"
	"testing"

	"tripflow_backend/internal/conversation/domain"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeSender struct {
	addresses []string
	texts     []string
	err       error
}

func (f *fakeSender) SendMessage(_ context.Context, address, message string) error {
	if f.err != nil {
		return f.err
	}
	f.addresses = append(f.addresses, address)
	f.texts = append(f.texts, message)
	return nil
}

type fakeLeads struct {
	lead leadrepo.Lead
}

func (f *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (leadrepo.Lead, error) {
	if id != f.lead.ID {
		return leadrepo.Lead{}, errors.New("lead not found")
	}
	return f.lead, nil
}

func TestDispatchRoutesByChannel(t *testing.T) {
	lead := leadrepo.Lead{ID: uuid.New(), Phone: "+5511999990000"}
	wa := &fakeSender{}
	ig := &fakeSender{}

	d := &Dispatcher{
		leads: &fakeLeads{lead: lead},
		senders: map[string]Sender{
			domain.ChannelWhatsApp:  wa,
			domain.ChannelInstagram: ig,
		},
		log: logger.New("development"),
	}

	if err := d.Dispatch(context.Background(), lead.ID, domain.ChannelWhatsApp, "olá"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(wa.texts) != 1 || wa.texts[0] != "olá" {
		t.Fatalf("expected whatsapp send, got %v", wa.texts)
	}
	if wa.addresses[0] != lead.Phone {
		t.Fatalf("expected send to %s, got %s", lead.Phone, wa.addresses[0])
	}
	if len(ig.texts) != 0 {
		t.Fatalf("instagram sender should not be used, got %v", ig.texts)
	}
}

func TestDispatchUnconfiguredChannelIsNoop(t *testing.T) {
	lead := leadrepo.Lead{ID: uuid.New(), Phone: "+5511999990000"}
	d := &Dispatcher{
		leads:   &fakeLeads{lead: lead},
		senders: map[string]Sender{},
		log:     logger.New("development"),
	}

	if err := d.Dispatch(context.Background(), lead.ID, domain.ChannelInstagram, "oi"); err != nil {
		t.Fatalf("expected noop, got %v", err)
	}
}

func TestDispatchPropagatesSenderError(t *testing.T) {
	lead := leadrepo.Lead{ID: uuid.New(), Phone: "+5511999990000"}
	d := &Dispatcher{
		leads: &fakeLeads{lead: lead},
		senders: map[string]Sender{
			domain.ChannelWhatsApp: &fakeSender{err: errors.New("gateway down")},
		},
		log: logger.New("development"),
	}

	if err := d.Dispatch(context.Background(), lead.ID, domain.ChannelWhatsApp, "oi"); err == nil {
		t.Fatal("expected error from sender")
	}
}
