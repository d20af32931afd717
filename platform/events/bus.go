package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tripflow_backend/platform/logger"
)

// InMemoryBus is a process-local Bus implementation. Handlers registered for
// an event name receive every published event of that name. Async publishing
// isolates handler panics so one bad subscriber cannot take down the writer.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously.
// Handler errors are logged, never propagated to the publisher.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.EventName()]))
	copy(handlers, b.handlers[event.EventName()])
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer b.recoverHandler(event.EventName())
			// Detach from the request context: the publisher's request may
			// complete before async handlers finish.
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil && b.log != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}(h)
	}
}

// PublishSync dispatches the event to all handlers sequentially and returns
// the combined error of any failures.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.EventName()]))
	copy(handlers, b.handlers[event.EventName()])
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.handleSafe(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryBus) handleSafe(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

func (b *InMemoryBus) recoverHandler(eventName string) {
	if r := recover(); r != nil && b.log != nil {
		b.log.Error("event handler panicked", "event", eventName, "panic", fmt.Sprintf("%v", r))
	}
}
