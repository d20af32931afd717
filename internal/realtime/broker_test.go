package realtime

import (
	"fmt"
	"testing"
	"time"

	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestBroker() *Broker {
	return NewBroker(logger.New("development"))
}

func TestPublishReachesAllGroupSubscribers(t *testing.T) {
	b := newTestBroker()
	group := ConversationGroup(uuid.New())

	ch1, cancel1 := b.Subscribe(group)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(group)
	defer cancel2()

	b.Publish(group, Event{Name: EventMessageNew, Payload: "oi"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Name != EventMessageNew {
				t.Errorf("subscriber %d got event %q", i, ev.Name)
			}
			if ev.At.IsZero() {
				t.Errorf("subscriber %d event missing timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestGroupsAreIsolated(t *testing.T) {
	b := newTestBroker()
	chA, cancelA := b.Subscribe(ConversationGroup(uuid.New()))
	defer cancelA()

	b.Publish(ConversationGroup(uuid.New()), Event{Name: EventStageChanged})

	select {
	case ev := <-chA:
		t.Errorf("received event %q from a different group", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerSubscriberOrderIsPreserved(t *testing.T) {
	b := newTestBroker()
	group := ConsultantGroup(uuid.New())
	ch, cancel := b.Subscribe(group)
	defer cancel()

	const n = 20
	for i := 0; i < n; i++ {
		b.Publish(group, Event{Name: EventNotification, Payload: i})
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			if ev.Payload.(int) != i {
				t.Fatalf("out of order: got %v at position %d", ev.Payload, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestSlowSubscriberDropsWithoutBlockingWriter(t *testing.T) {
	b := newTestBroker()
	group := GroupBroadcast
	ch, cancel := b.Subscribe(group)
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Publish far beyond the buffer without anyone draining.
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Broadcast(Event{Name: EventNotification, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The buffer holds the oldest events; the rest were dropped.
	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", got, subscriberBuffer)
	}
}

func TestCancelIsIdempotentAndStopsDelivery(t *testing.T) {
	b := newTestBroker()
	group := ConversationGroup(uuid.New())
	ch, cancel := b.Subscribe(group)

	cancel()
	cancel()

	if b.SubscriberCount(group) != 0 {
		t.Error("subscriber still registered after cancel")
	}

	// Channel is closed: a receive completes immediately with the zero event.
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Publishing to the now-empty group must not panic.
	b.Publish(group, Event{Name: EventModeChanged})
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := newTestBroker()
	group := ConsultantGroup(uuid.New())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(group, Event{Name: EventNotification})
			}
		}
	}()

	for i := 0; i < 100; i++ {
		ch, cancel := b.Subscribe(group)
		go func() {
			for range ch {
			}
		}()
		cancel()
	}
	close(stop)
}

func TestGroupKeyFormats(t *testing.T) {
	id := uuid.New()
	if got, want := ConversationGroup(id), fmt.Sprintf("conversation:%s", id); got != want {
		t.Errorf("ConversationGroup = %q, want %q", got, want)
	}
	if got, want := ConsultantGroup(id), fmt.Sprintf("consultant:%s", id); got != want {
		t.Errorf("ConsultantGroup = %q, want %q", got, want)
	}
}
