// Package service orchestrates the conversation pipeline: message ingestion,
// stage resolution, handoff decisions, mode transitions, assignment, and
// fan-out of committed state changes.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"tripflow_backend/internal/consultants/repository"
	"tripflow_backend/internal/conversation/domain"
	"tripflow_backend/internal/conversation/handoff"
	convrepo "tripflow_backend/internal/conversation/repository"
	"tripflow_backend/internal/conversation/stage"
	"tripflow_backend/internal/conversation/trigger"
	"tripflow_backend/internal/events"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/internal/realtime"
	"tripflow_backend/platform/apperr"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ConversationStore persists conversations and their message log.
type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error)
	FindOrCreateOpen(ctx context.Context, leadID uuid.UUID, channel string) (domain.Conversation, error)
	UpdateState(ctx context.Context, c domain.Conversation) (domain.Conversation, error)
	AppendMessage(ctx context.Context, m convrepo.Message) (convrepo.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]convrepo.Message, error)
	List(ctx context.Context, status string, limit int) ([]domain.Conversation, error)
}

// LeadStore is the narrow lead write set the orchestrator is allowed to touch:
// stage, qualification, score, assignment, last contact.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadrepo.Lead, error)
	UpdatePipeline(ctx context.Context, id uuid.UUID, expectedVersion int, u leadrepo.PipelineUpdate) (leadrepo.Lead, error)
	Assign(ctx context.Context, id uuid.UUID, consultantID uuid.UUID) error
	TouchLastContact(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ConsultantPicker chooses the consultant for a handed-off conversation.
type ConsultantPicker interface {
	Select(ctx context.Context, current *uuid.UUID, priority string) (*repository.Consultant, error)
}

// Responder generates the AI reply for an inbound message. The completion
// call itself is external; the orchestrator only gates it via CanRespond.
type Responder interface {
	Reply(ctx context.Context, conv domain.Conversation, history []convrepo.Message, text string) (string, error)
}

// OutboundEnqueuer queues a channel send as a fire-and-forget follow-up.
// State is always committed before anything is enqueued here, so a slow
// channel adapter can never delay mode/stage consistency.
type OutboundEnqueuer interface {
	EnqueueOutbound(ctx context.Context, leadID uuid.UUID, channel, text string) error
}

// Outbound texts sent on mode transitions.
const (
	msgConnectingSpecialist = "Um momento! Estou te conectando com um de nossos consultores de viagem. 🧳"
	msgAIResumed            = "Nosso assistente virtual voltou a te atender por aqui. Como posso ajudar?"
)

const stateRetryAttempts = 3

// Service is the conversation orchestrator.
type Service struct {
	conversations ConversationStore
	leads         LeadStore
	matcher       *trigger.Matcher
	resolver      *stage.Resolver
	policy        *handoff.Policy
	selector      ConsultantPicker
	responder     Responder
	outbound      OutboundEnqueuer
	broker        *realtime.Broker
	bus           events.Bus
	log           *logger.Logger
	now           func() time.Time

	locks convLocks
}

// New wires the orchestrator. responder and outbound may be nil in degraded
// configurations; all other dependencies are required.
func New(
	conversations ConversationStore,
	leads LeadStore,
	matcher *trigger.Matcher,
	resolver *stage.Resolver,
	policy *handoff.Policy,
	selector ConsultantPicker,
	responder Responder,
	outbound OutboundEnqueuer,
	broker *realtime.Broker,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		leads:         leads,
		matcher:       matcher,
		resolver:      resolver,
		policy:        policy,
		selector:      selector,
		responder:     responder,
		outbound:      outbound,
		broker:        broker,
		bus:           bus,
		log:           log,
		now:           time.Now,
		locks:         convLocks{entries: make(map[uuid.UUID]*convLock)},
	}
}

// convLocks serializes processing per conversation. Messages for the same
// conversation are handled in arrival order; different conversations run
// fully in parallel.
type convLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func (l *convLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &convLock{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

// AcceptHandoff moves a standby conversation to the accepting consultant.
func (s *Service) AcceptHandoff(ctx context.Context, conversationID, consultantID uuid.UUID) (domain.Conversation, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.commitTransition(ctx, conversationID, func(c *domain.Conversation) error {
		return c.AcceptHandoff(consultantID, s.now())
	})
	if err != nil {
		return domain.Conversation{}, err
	}

	if err := s.leads.Assign(ctx, conv.LeadID, consultantID); err != nil {
		s.log.Error("lead assignment write failed after accept", "error", err, "lead_id", conv.LeadID)
	}

	s.log.ModeTransition(conv.ID.String(), domain.ModeStandby, domain.ModeHuman, "consultant accepted")
	s.publishModeChange(ctx, conv, domain.ModeStandby, "consultant accepted")
	s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
		Name:    realtime.EventHandoffAccepted,
		Payload: conv,
	})
	s.bus.Publish(ctx, events.HandoffAccepted{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		ConsultantID:   consultantID,
	})
	return conv, nil
}

// FinishHumanAttendance returns a human-owned conversation to the AI.
func (s *Service) FinishHumanAttendance(ctx context.Context, conversationID, consultantID uuid.UUID) (domain.Conversation, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.commitTransition(ctx, conversationID, func(c *domain.Conversation) error {
		return c.FinishAttendance()
	})
	if err != nil {
		return domain.Conversation{}, err
	}

	s.log.ModeTransition(conv.ID.String(), domain.ModeHuman, domain.ModeAI, "attendance finished")
	s.publishModeChange(ctx, conv, domain.ModeHuman, "attendance finished")
	s.bus.Publish(ctx, events.HumanAttendanceFinished{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		ConsultantID:   consultantID,
	})
	s.enqueueOutbound(ctx, conv.LeadID, conv.Channel, msgAIResumed)
	return conv, nil
}

// Close terminates a conversation. The record is kept, never deleted.
func (s *Service) Close(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.commitTransition(ctx, conversationID, func(c *domain.Conversation) error {
		return c.Close()
	})
	if err != nil {
		return domain.Conversation{}, err
	}

	s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
		Name:    realtime.EventModeChanged,
		Payload: conv,
	})
	return conv, nil
}

// ConsultantSend appends a consultant-authored outbound message. Only the
// attending consultant may send while the conversation is human-owned.
func (s *Service) ConsultantSend(ctx context.Context, conversationID, consultantID uuid.UUID, text string) (convrepo.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return convrepo.Message{}, apperr.Validation("message text is required")
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return convrepo.Message{}, err
	}
	if conv.Mode != domain.ModeHuman {
		return convrepo.Message{}, apperr.Conflict("conversation is not in human attendance")
	}
	if conv.ConsultantID == nil || *conv.ConsultantID != consultantID {
		return convrepo.Message{}, apperr.Forbidden("conversation is attended by another consultant")
	}

	msg, err := s.conversations.AppendMessage(ctx, convrepo.Message{
		ConversationID: conversationID,
		Sender:         domain.SenderConsultant,
		Text:           text,
	})
	if err != nil {
		return convrepo.Message{}, err
	}

	s.enqueueOutbound(ctx, conv.LeadID, conv.Channel, text)
	s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
		Name:    realtime.EventMessageNew,
		Payload: msg,
	})
	return msg, nil
}

// Get returns one conversation with its message log.
func (s *Service) Get(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, []convrepo.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	msgs, err := s.conversations.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

// List returns conversations, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]domain.Conversation, error) {
	return s.conversations.List(ctx, status, limit)
}

// commitTransition applies a state-machine transition with optimistic retry:
// on a concurrent-write conflict the conversation is re-read and the
// transition re-applied against fresh state. Transition rejections (conflict
// from the state machine itself) are returned to the caller unchanged.
func (s *Service) commitTransition(ctx context.Context, conversationID uuid.UUID, apply func(*domain.Conversation) error) (domain.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt < stateRetryAttempts; attempt++ {
		conv, err := s.conversations.GetByID(ctx, conversationID)
		if err != nil {
			return domain.Conversation{}, err
		}
		if err := apply(&conv); err != nil {
			return domain.Conversation{}, err
		}
		updated, err := s.conversations.UpdateState(ctx, conv)
		if err == nil {
			return updated, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return domain.Conversation{}, err
		}
		lastErr = err
	}
	return domain.Conversation{}, lastErr
}

func (s *Service) publishModeChange(ctx context.Context, conv domain.Conversation, oldMode, reason string) {
	s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
		Name:    realtime.EventModeChanged,
		Payload: conv,
	})
	s.bus.Publish(ctx, events.ConversationModeChanged{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		OldMode:        oldMode,
		NewMode:        conv.Mode,
		ConsultantID:   conv.ConsultantID,
		Reason:         reason,
	})
}

func (s *Service) enqueueOutbound(ctx context.Context, leadID uuid.UUID, channel, text string) {
	if s.outbound == nil {
		return
	}
	if err := s.outbound.EnqueueOutbound(ctx, leadID, channel, text); err != nil {
		// Outbound delivery failures never roll back committed state.
		s.log.Error("outbound enqueue failed", "error", err, "lead_id", leadID, "channel", channel)
	}
}
