package automation

import (
	"context"

	"tripflow_backend/internal/conversation/assign"
	"tripflow_backend/internal/conversation/handoff"
	"tripflow_backend/internal/events"
	leaddomain "tripflow_backend/internal/leads/domain"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/platform/apperr"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const moveStageRetryAttempts = 3

// Module wires the rule engine to the event bus. Not HTTP-facing: rules are
// operator-seeded and evaluated purely from domain events.
type Module struct {
	engine *Engine
	log    *logger.Logger
}

// NewModule builds the automation module on top of the shared pool, the lead
// repository, the assignment selector, and the notification collaborator.
func NewModule(pool *pgxpool.Pool, leads *leadrepo.Repository, selector *assign.Selector, notifier Notifier, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	pipeline := &pipelineAdapter{leads: leads, selector: selector, bus: bus, log: log}
	engine := NewEngine(repo, repo, notifier, leads, pipeline, pipeline, log)
	return &Module{engine: engine, log: log}
}

// Engine exposes the rule engine for collaborators that emit ad-hoc triggers.
func (m *Module) Engine() *Engine {
	return m.engine
}

// RegisterHandlers subscribes the engine to the closed trigger set.
func (m *Module) RegisterHandlers(bus events.Bus) {
	triggers := []string{
		events.TriggerLeadCreated,
		events.TriggerLeadStageChanged,
		events.TriggerLeadNoContact,
		events.TriggerProposalSent,
		events.TriggerProposalViewed,
	}
	for _, trigger := range triggers {
		bus.Subscribe(trigger, events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
			return m.engine.HandleTrigger(ctx, ev.EventName(), ev)
		}))
	}
}

// pipelineAdapter implements the engine's direct lead mutations on the lead
// repository, with the same optimistic retry the orchestrator uses.
type pipelineAdapter struct {
	leads    *leadrepo.Repository
	selector *assign.Selector
	bus      events.Bus
	log      *logger.Logger
}

// MoveStage moves a lead directly, bypassing message resolution. The
// resulting stage-change event still flows through the bus so downstream
// rules and subscribers observe it.
func (a *pipelineAdapter) MoveStage(ctx context.Context, leadID uuid.UUID, stage string) error {
	if !leaddomain.IsKnownStage(stage) {
		return apperr.Validation("unknown stage: " + stage)
	}

	for attempt := 0; attempt < moveStageRetryAttempts; attempt++ {
		lead, err := a.leads.GetByID(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.Stage == stage {
			return nil
		}

		_, err = a.leads.UpdatePipeline(ctx, leadID, lead.Version, leadrepo.PipelineUpdate{Stage: &stage})
		if err == nil {
			a.bus.Publish(ctx, events.LeadStageChanged{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    leadID,
				OldStage:  lead.Stage,
				NewStage:  stage,
				Reason:    "automation rule",
			})
			return nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return err
		}
	}
	return apperr.Conflict("stage move abandoned after repeated write conflicts")
}

// AssignLead assigns a lead to the given consultant, or to the least-loaded
// active consultant when none is specified.
func (a *pipelineAdapter) AssignLead(ctx context.Context, leadID uuid.UUID, consultantID *uuid.UUID) error {
	if consultantID == nil {
		picked, err := a.selector.Select(ctx, nil, handoff.PriorityHigh)
		if err != nil {
			return err
		}
		if picked == nil {
			return apperr.Conflict("no active consultant available")
		}
		consultantID = &picked.ID
	}
	return a.leads.Assign(ctx, leadID, *consultantID)
}
