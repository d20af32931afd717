package webhook

import (
	"context"
	"testing"
	"time"

	"tripflow_backend/internal/conversation/domain"
	convservice "tripflow_backend/internal/conversation/service"
	"tripflow_backend/internal/events"
	leadrepo "tripflow_backend/internal/leads/repository"
	platformevents "tripflow_backend/platform/events"
	"tripflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeLeadDirectory struct {
	leads map[string]leadrepo.Lead
}

func (f *fakeLeadDirectory) FindOrCreateByPhone(_ context.Context, phone, name string) (leadrepo.Lead, bool, error) {
	if lead, ok := f.leads[phone]; ok {
		return lead, false, nil
	}
	lead := leadrepo.Lead{ID: uuid.New(), Name: name, Phone: phone, Version: 1}
	f.leads[phone] = lead
	return lead, true, nil
}

type fakeIngestor struct {
	calls  []convservice.IngestParams
	result convservice.IngestResult
}

func (f *fakeIngestor) IngestMessage(_ context.Context, p convservice.IngestParams) (convservice.IngestResult, error) {
	f.calls = append(f.calls, p)
	return f.result, nil
}

type fakeMediaStore struct {
	stored []string
}

func (f *fakeMediaStore) StoreFromURL(_ context.Context, sourceURL, _ string) (string, error) {
	f.stored = append(f.stored, sourceURL)
	return "media/" + uuid.NewString(), nil
}

func newTestService(t *testing.T) (*Service, *fakeLeadDirectory, *fakeIngestor, *fakeMediaStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.New("development")
	leads := &fakeLeadDirectory{leads: make(map[string]leadrepo.Lead)}
	ingestor := &fakeIngestor{
		result: convservice.IngestResult{Conversation: domain.Conversation{ID: uuid.New()}},
	}
	media := &fakeMediaStore{}
	bus := platformevents.NewInMemoryBus(log)

	svc := NewService(NewDeduper(rdb), leads, ingestor, media, bus, log)
	return svc, leads, ingestor, media
}

func TestProcessInboundCreatesLeadAndIngests(t *testing.T) {
	svc, leads, ingestor, _ := newTestService(t)

	result, err := svc.ProcessInbound(context.Background(), InboundMessage{
		Channel:    domain.ChannelWhatsApp,
		MessageID:  "wamid-1",
		From:       "5511999990000",
		SenderName: "Marina",
		Text:       "quero viajar para Paris",
	})
	if err != nil {
		t.Fatalf("process inbound: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first delivery must not be a duplicate")
	}

	lead, ok := leads.leads["+5511999990000"]
	if !ok {
		t.Fatalf("expected lead keyed by normalized phone, got %v", leads.leads)
	}
	if lead.Name != "Marina" {
		t.Fatalf("expected pushname as lead name, got %q", lead.Name)
	}

	if len(ingestor.calls) != 1 {
		t.Fatalf("expected 1 ingest call, got %d", len(ingestor.calls))
	}
	call := ingestor.calls[0]
	if call.LeadID != lead.ID || call.Channel != domain.ChannelWhatsApp || call.SenderRole != domain.SenderLead {
		t.Fatalf("unexpected ingest params: %+v", call)
	}
}

func TestProcessInboundDropsRedelivery(t *testing.T) {
	svc, _, ingestor, _ := newTestService(t)

	in := InboundMessage{
		Channel:   domain.ChannelWhatsApp,
		MessageID: "wamid-retry",
		From:      "5511999990000",
		Text:      "oi",
	}

	if _, err := svc.ProcessInbound(context.Background(), in); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := svc.ProcessInbound(context.Background(), in)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if !result.Duplicate {
		t.Fatal("redelivery must be reported as duplicate")
	}
	if len(ingestor.calls) != 1 {
		t.Fatalf("redelivery must not be ingested, got %d calls", len(ingestor.calls))
	}
}

func TestProcessInboundDistinctMessageIDsBothProcess(t *testing.T) {
	svc, _, ingestor, _ := newTestService(t)

	for _, id := range []string{"wamid-a", "wamid-b"} {
		if _, err := svc.ProcessInbound(context.Background(), InboundMessage{
			Channel:   domain.ChannelWhatsApp,
			MessageID: id,
			From:      "5511999990000",
			Text:      "oi",
		}); err != nil {
			t.Fatalf("delivery %s: %v", id, err)
		}
	}

	if len(ingestor.calls) != 2 {
		t.Fatalf("expected 2 ingest calls, got %d", len(ingestor.calls))
	}
}

func TestProcessInboundStoresMedia(t *testing.T) {
	svc, _, ingestor, media := newTestService(t)

	if _, err := svc.ProcessInbound(context.Background(), InboundMessage{
		Channel:   domain.ChannelWhatsApp,
		MessageID: "wamid-media",
		From:      "5511999990000",
		MediaURL:  "https://gateway.example/media/abc",
		MediaMIME: "image/jpeg",
	}); err != nil {
		t.Fatalf("process inbound: %v", err)
	}

	if len(media.stored) != 1 {
		t.Fatalf("expected media stored once, got %v", media.stored)
	}
	if ingestor.calls[0].AttachmentKey == nil {
		t.Fatal("expected attachment key on ingest params")
	}
}

func TestProcessInboundPublishesLeadCreatedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.New("development")
	leads := &fakeLeadDirectory{leads: make(map[string]leadrepo.Lead)}
	ingestor := &fakeIngestor{}
	bus := platformevents.NewInMemoryBus(log)

	created := make(chan events.Event, 2)
	bus.Subscribe(events.TriggerLeadCreated, events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		created <- ev
		return nil
	}))

	svc := NewService(NewDeduper(rdb), leads, ingestor, nil, bus, log)

	for _, id := range []string{"m1", "m2"} {
		if _, err := svc.ProcessInbound(context.Background(), InboundMessage{
			Channel:   domain.ChannelWhatsApp,
			MessageID: id,
			From:      "5511999990000",
			Text:      "oi",
		}); err != nil {
			t.Fatalf("delivery %s: %v", id, err)
		}
	}

	select {
	case <-created:
	case <-time.After(time.Second):
		t.Fatal("expected lead.created for the first contact")
	}

	// Publish is asynchronous; give a second event time to surface before
	// asserting there is none.
	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-created:
		t.Fatalf("lead.created must fire only for the first contact, got extra %v", ev)
	default:
	}
}

func TestProcessInboundRejectsMissingSender(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.ProcessInbound(context.Background(), InboundMessage{
		Channel:   domain.ChannelWhatsApp,
		MessageID: "m1",
		Text:      "oi",
	}); err == nil {
		t.Fatal("expected validation error for missing sender")
	}
}
