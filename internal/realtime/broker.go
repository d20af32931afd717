// Package realtime fans committed state changes out to connected consultant
// sessions. Delivery is best-effort: no replay, no acks. A disconnected
// subscriber misses events until it reconnects and re-fetches state.
package realtime

import (
	"sync"
	"time"

	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Event names published by the orchestrator.
const (
	EventMessageNew       = "message.new"
	EventModeChanged      = "mode.changed"
	EventStageChanged     = "stage.changed"
	EventHandoffRequested = "handoff.requested"
	EventHandoffAccepted  = "handoff.accepted"
	EventNotification     = "notification.new"
)

// GroupBroadcast addresses every connected session.
const GroupBroadcast = "broadcast"

// ConversationGroup addresses sessions currently viewing one conversation.
func ConversationGroup(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// ConsultantGroup addresses one consultant's own notification stream.
func ConsultantGroup(consultantID uuid.UUID) string {
	return "consultant:" + consultantID.String()
}

// Event is one fan-out unit.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// subscriberBuffer bounds how far one slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 32

// Broker maintains addressable subscriber groups. Publish never blocks the
// writer: a full subscriber buffer drops the event for that subscriber only.
// Within one subscriber, delivery order matches publish order.
type Broker struct {
	mu     sync.RWMutex
	groups map[string]map[uint64]chan Event
	nextID uint64
	log    *logger.Logger
}

func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		groups: make(map[string]map[uint64]chan Event),
		log:    log,
	}
}

// Subscribe registers a session on a group. The returned cancel function is
// idempotent and closes the channel, so receivers can range over it.
func (b *Broker) Subscribe(group string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	subs, ok := b.groups[group]
	if !ok {
		subs = make(map[uint64]chan Event)
		b.groups[group] = subs
	}
	id := b.nextID
	b.nextID++
	subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.groups[group]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.groups, group)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber of the group.
func (b *Broker) Publish(group string, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.groups[group] {
		select {
		case ch <- ev:
		default:
			b.log.Warn("realtime subscriber buffer full, dropping event",
				"group", group, "event", ev.Name)
		}
	}
}

// Broadcast delivers the event to all connected consultants.
func (b *Broker) Broadcast(ev Event) {
	b.Publish(GroupBroadcast, ev)
}

// SubscriberCount reports how many sessions a group currently has.
func (b *Broker) SubscriberCount(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}
