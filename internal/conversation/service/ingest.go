package service

import (
	"context"
	"strings"

	"tripflow_backend/internal/conversation/domain"
	"tripflow_backend/internal/conversation/handoff"
	convrepo "tripflow_backend/internal/conversation/repository"
	"tripflow_backend/internal/conversation/stage"
	"tripflow_backend/internal/conversation/trigger"
	"tripflow_backend/internal/events"
	leaddomain "tripflow_backend/internal/leads/domain"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/internal/realtime"
	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// IngestParams carries one inbound message into the orchestrator.
type IngestParams struct {
	// ConversationID is optional; when absent the open conversation for the
	// lead/channel pair is found or created.
	ConversationID *uuid.UUID
	LeadID         uuid.UUID
	Channel        string
	Text           string
	SenderRole     string
	AttachmentKey  *string
}

// IngestResult reports what one message caused.
type IngestResult struct {
	Conversation     domain.Conversation
	Message          convrepo.Message
	StageChanged     bool
	NewStage         string
	HandoffRequested bool
	Priority         string
	AIReplied        bool
	AIReply          string
}

// IngestMessage processes one inbound message end to end: append to the log,
// resolve stage and handoff in parallel, apply at most one mode transition,
// commit, then fan out and enqueue follow-ups. Messages for one conversation
// are processed strictly in arrival order. Ingestion never returns an
// unhandled fault for classification or state-machine rejections; the
// conversation is always left in a well-defined state.
func (s *Service) IngestMessage(ctx context.Context, p IngestParams) (IngestResult, error) {
	if !domain.IsKnownChannel(p.Channel) {
		return IngestResult{}, apperr.Validation("unknown channel: " + p.Channel)
	}
	if p.SenderRole == "" {
		p.SenderRole = domain.SenderLead
	}
	text := strings.TrimSpace(p.Text)
	if text == "" && p.AttachmentKey == nil {
		return IngestResult{}, apperr.Validation("message has no text or attachment")
	}

	conv, err := s.resolveConversation(ctx, p)
	if err != nil {
		return IngestResult{}, err
	}

	unlock := s.locks.lock(conv.ID)
	defer unlock()

	// Re-read under the lock so classification sees the latest committed state.
	conv, err = s.conversations.GetByID(ctx, conv.ID)
	if err != nil {
		return IngestResult{}, err
	}
	if conv.Status == domain.StatusClosed {
		return IngestResult{}, apperr.Conflict("conversation is closed")
	}

	msg, err := s.conversations.AppendMessage(ctx, convrepo.Message{
		ConversationID: conv.ID,
		Sender:         p.SenderRole,
		Text:           text,
		AttachmentKey:  p.AttachmentKey,
	})
	if err != nil {
		return IngestResult{}, err
	}

	res := IngestResult{Conversation: conv, Message: msg}

	s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
		Name:    realtime.EventMessageNew,
		Payload: msg,
	})
	s.bus.Publish(ctx, events.ConversationMessageReceived{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		Channel:        conv.Channel,
		SenderRole:     p.SenderRole,
		Text:           text,
	})

	if p.SenderRole != domain.SenderLead {
		res.Conversation = conv
		return res, nil
	}

	if err := s.leads.TouchLastContact(ctx, conv.LeadID, s.now()); err != nil {
		s.log.Error("touch last contact failed", "error", err, "lead_id", conv.LeadID)
	}

	lead, err := s.leads.GetByID(ctx, conv.LeadID)
	if err != nil {
		return IngestResult{}, err
	}
	if leaddomain.IsTerminal(lead.Stage) {
		// Terminal leads get no further stage transitions or AI processing.
		return res, nil
	}

	budget := 0.0
	if lead.Budget != nil {
		budget = *lead.Budget
	}
	proposalSent := leaddomain.StageRank(lead.Stage) >= leaddomain.StageRank(leaddomain.StageProposalSent)

	match := s.matcher.Match(text)

	// Stage resolution and handoff scoring are independent; run them in
	// parallel and join before touching any state.
	var (
		proposal stage.Proposal
		decision handoff.Decision
		g        errgroup.Group
	)
	g.Go(func() error {
		proposal = s.resolver.Resolve(lead.Stage, lead.Qualification(), match)
		return nil
	})
	g.Go(func() error {
		decision = s.policy.Evaluate(text, handoff.Context{
			Qualified:    lead.Qualified,
			LeadScore:    lead.Score,
			Budget:       budget,
			AITurns:      conv.AITurns,
			StartedAt:    conv.CreatedAt,
			ProposalSent: proposalSent,
			Now:          s.now(),
		})
		return nil
	})
	_ = g.Wait()

	s.log.HandoffDecision(conv.ID.String(), decision.Score, decision.Priority, decision.ShouldHandover)

	s.applyStageProposal(ctx, &res, conv, lead, match, proposal)

	switch {
	case conv.Mode == domain.ModeAI && (decision.ShouldHandover || proposal.RequestHandoff):
		conv = s.applyHandoff(ctx, &res, conv, lead, proposal, decision)
	case conv.CanRespond():
		conv = s.respondWithAI(ctx, &res, conv, text)
	default:
		// Standby or human-owned: the AI stays silent, the attending side
		// sees the message through the fan-out above.
	}

	res.Conversation = conv
	return res, nil
}

func (s *Service) resolveConversation(ctx context.Context, p IngestParams) (domain.Conversation, error) {
	if p.ConversationID != nil {
		return s.conversations.GetByID(ctx, *p.ConversationID)
	}
	return s.conversations.FindOrCreateOpen(ctx, p.LeadID, p.Channel)
}

// applyStageProposal persists the stage transition and/or captured
// qualification fields with optimistic retry against the lead record. The
// resolver is re-run on fresh state after a lost write race.
func (s *Service) applyStageProposal(ctx context.Context, res *IngestResult, conv domain.Conversation, lead leadrepo.Lead, match trigger.Result, proposal stage.Proposal) {
	for attempt := 0; attempt < stateRetryAttempts; attempt++ {
		u := pipelineUpdateFrom(proposal)
		if u == (leadrepo.PipelineUpdate{}) {
			return
		}

		updated, err := s.leads.UpdatePipeline(ctx, lead.ID, lead.Version, u)
		if err == nil {
			if proposal.Transitions() {
				res.StageChanged = true
				res.NewStage = proposal.Stage
				s.log.Info("stage transition applied",
					"lead_id", lead.ID, "from", lead.Stage, "to", proposal.Stage,
					"confidence", proposal.Confidence, "reason", proposal.Reason)
				s.broker.Publish(realtime.ConversationGroup(conv.ID), realtime.Event{
					Name:    realtime.EventStageChanged,
					Payload: updated,
				})
				s.bus.Publish(ctx, events.LeadStageChanged{
					BaseEvent:      events.NewBaseEvent(),
					LeadID:         lead.ID,
					ConversationID: &conv.ID,
					OldStage:       lead.Stage,
					NewStage:       proposal.Stage,
					Confidence:     proposal.Confidence,
					Reason:         proposal.Reason,
				})
			}
			return
		}
		if !apperr.Is(err, apperr.KindConflict) {
			s.log.DatabaseError("apply stage proposal", err)
			return
		}

		// Lost the write race: re-read and re-resolve against fresh state.
		fresh, readErr := s.leads.GetByID(ctx, lead.ID)
		if readErr != nil {
			s.log.DatabaseError("re-read lead after conflict", readErr)
			return
		}
		lead = fresh
		proposal = s.resolver.Resolve(lead.Stage, lead.Qualification(), match)
	}
	s.log.Warn("stage proposal abandoned after repeated write conflicts", "lead_id", lead.ID)
}

func pipelineUpdateFrom(p stage.Proposal) leadrepo.PipelineUpdate {
	var u leadrepo.PipelineUpdate
	if p.Transitions() {
		st := p.Stage
		u.Stage = &st
	}
	if p.Captured.Destination != "" {
		d := p.Captured.Destination
		u.Destination = &d
	}
	if p.Captured.TravelWindow != "" {
		w := p.Captured.TravelWindow
		u.TravelWindow = &w
	}
	if p.Captured.Budget > 0 {
		b := p.Captured.Budget
		u.Budget = &b
	}
	if p.Qualified {
		q := true
		u.Qualified = &q
	}
	return u
}

// applyHandoff commits ai→standby, selects a consultant, and fans out. An
// empty selection still records the handoff; the lead is never silently
// stranded.
func (s *Service) applyHandoff(ctx context.Context, res *IngestResult, conv domain.Conversation, lead leadrepo.Lead, proposal stage.Proposal, decision handoff.Decision) domain.Conversation {
	reason := proposal.HandoffReason
	if reason == "" {
		reason = strings.Join(decision.Reasons, ", ")
	}
	priority := decision.Priority
	if proposal.RequestHandoff && (priority == handoff.PriorityLow || priority == handoff.PriorityMedium) {
		// A stage-mandated handoff is never low urgency.
		priority = handoff.PriorityHigh
	}

	committed, err := s.commitTransition(ctx, conv.ID, func(c *domain.Conversation) error {
		return c.RequestHandoff(reason, s.now())
	})
	if err != nil {
		// Conflicting-state rejection: another writer moved the conversation
		// first. The message is already logged; nothing else to do.
		s.log.Warn("handoff request rejected", "conversation_id", conv.ID, "error", err)
		return conv
	}

	res.HandoffRequested = true
	res.Priority = priority
	s.log.ModeTransition(committed.ID.String(), domain.ModeAI, domain.ModeStandby, reason)

	var consultantID *uuid.UUID
	picked, err := s.selector.Select(ctx, lead.AssignedConsultantID, priority)
	if err != nil {
		s.log.Error("consultant selection failed", "error", err, "conversation_id", committed.ID)
	}
	if picked != nil {
		consultantID = &picked.ID
		if err := s.leads.Assign(ctx, lead.ID, picked.ID); err != nil {
			s.log.Error("lead assignment write failed", "error", err, "lead_id", lead.ID)
		}
	} else if err == nil {
		// Assignment exhaustion: handoff stays recorded, operators are alerted.
		s.bus.Publish(ctx, events.AssignmentExhausted{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: committed.ID,
			LeadID:         lead.ID,
			Priority:       priority,
			Reason:         reason,
		})
	}

	s.publishModeChange(ctx, committed, domain.ModeAI, reason)
	handoffEvent := events.HandoffRequested{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: committed.ID,
		LeadID:         lead.ID,
		Reason:         reason,
		Priority:       priority,
		ConsultantID:   consultantID,
	}
	s.bus.Publish(ctx, handoffEvent)
	s.broker.Publish(realtime.ConversationGroup(committed.ID), realtime.Event{
		Name:    realtime.EventHandoffRequested,
		Payload: handoffEvent,
	})
	if consultantID != nil {
		s.broker.Publish(realtime.ConsultantGroup(*consultantID), realtime.Event{
			Name:    realtime.EventHandoffRequested,
			Payload: handoffEvent,
		})
	} else {
		s.broker.Broadcast(realtime.Event{
			Name:    realtime.EventHandoffRequested,
			Payload: handoffEvent,
		})
	}

	// State is committed; the channel send is a fire-and-forget follow-up.
	s.enqueueOutbound(ctx, lead.ID, committed.Channel, msgConnectingSpecialist)
	return committed
}

// respondWithAI invokes the responder for an AI-owned active conversation.
// Responder failures are logged, never surfaced: the inbound message is
// already committed.
func (s *Service) respondWithAI(ctx context.Context, res *IngestResult, conv domain.Conversation, text string) domain.Conversation {
	if s.responder == nil {
		return conv
	}

	committed, err := s.commitTransition(ctx, conv.ID, func(c *domain.Conversation) error {
		if !c.CanRespond() {
			return apperr.Conflict("conversation no longer AI-owned")
		}
		c.AITurns++
		return nil
	})
	if err != nil {
		s.log.Warn("skipping AI reply", "conversation_id", conv.ID, "error", err)
		return conv
	}

	history, err := s.conversations.ListMessages(ctx, committed.ID, 20)
	if err != nil {
		s.log.DatabaseError("load history for responder", err)
		history = nil
	}

	reply, err := s.responder.Reply(ctx, committed, history, text)
	if err != nil {
		s.log.Error("AI responder failed", "error", err, "conversation_id", committed.ID)
		return committed
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return committed
	}

	msg, err := s.conversations.AppendMessage(ctx, convrepo.Message{
		ConversationID: committed.ID,
		Sender:         domain.SenderAI,
		Text:           reply,
	})
	if err != nil {
		s.log.DatabaseError("append AI reply", err)
		return committed
	}

	res.AIReplied = true
	res.AIReply = reply
	s.enqueueOutbound(ctx, committed.LeadID, committed.Channel, reply)
	s.broker.Publish(realtime.ConversationGroup(committed.ID), realtime.Event{
		Name:    realtime.EventMessageNew,
		Payload: msg,
	})
	return committed
}
