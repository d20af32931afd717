package notification

import (
	"context"
	"fmt"

	"tripflow_backend/internal/events"
	apphttp "tripflow_backend/internal/http"
	"tripflow_backend/internal/realtime"
	"tripflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OperatorAlerter delivers system-level alerts to operators out of band.
type OperatorAlerter interface {
	SendOperatorAlert(ctx context.Context, subject, body string) error
}

// Module wires notification persistence, realtime push, event subscriptions,
// and the consultant-facing feed endpoints.
type Module struct {
	service *Service
	handler *handler
	alerter OperatorAlerter
	log     *logger.Logger
}

func NewModule(pool *pgxpool.Pool, broker *realtime.Broker, alerter OperatorAlerter, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), broker, log)
	return &Module{
		service: svc,
		handler: newHandler(svc),
		alerter: alerter,
		log:     log,
	}
}

// Service exposes the notification service to collaborating modules.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) Name() string { return "notification" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.registerRoutes(ctx.Protected)
}

// RegisterHandlers subscribes to the domain events that produce consultant
// notifications and operator alerts.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe("conversation.handoff.requested", events.HandlerFunc(m.onHandoffRequested))
	bus.Subscribe("conversation.assignment.exhausted", events.HandlerFunc(m.onAssignmentExhausted))
}

func (m *Module) onHandoffRequested(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.HandoffRequested)
	if !ok {
		return nil
	}

	title := "Novo atendimento aguardando"
	message := fmt.Sprintf("Prioridade %s: %s", e.Priority, e.Reason)
	link := "/conversations/" + e.ConversationID.String()

	if e.ConsultantID != nil {
		return m.service.Notify(ctx, *e.ConsultantID, title, message, link)
	}
	return m.service.NotifyConsultants(ctx, title, message, link)
}

func (m *Module) onAssignmentExhausted(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.AssignmentExhausted)
	if !ok {
		return nil
	}

	// The lead is waiting with nobody assigned. Every consultant sees it, and
	// operators get an out-of-band alert.
	if err := m.service.NotifyConsultants(ctx,
		"Atendimento sem consultor disponível",
		fmt.Sprintf("Conversa %s aguarda atendimento (prioridade %s)", e.ConversationID, e.Priority),
		"/conversations/"+e.ConversationID.String(),
	); err != nil {
		m.log.Error("exhaustion notification failed", "error", err)
	}

	if m.alerter == nil {
		return nil
	}
	return m.alerter.SendOperatorAlert(ctx,
		"Handoff sem consultor disponível",
		fmt.Sprintf("A conversa %s (lead %s) entrou em espera com prioridade %s e nenhum consultor ativo pôde ser selecionado.\n\nMotivo: %s",
			e.ConversationID, e.LeadID, e.Priority, e.Reason),
	)
}
