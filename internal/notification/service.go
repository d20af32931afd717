package notification

import (
	"context"

	"tripflow_backend/internal/realtime"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Service persists notifications and pushes them to connected sessions.
type Service struct {
	repo   *Repository
	broker *realtime.Broker
	log    *logger.Logger
}

func NewService(repo *Repository, broker *realtime.Broker, log *logger.Logger) *Service {
	return &Service{repo: repo, broker: broker, log: log}
}

// Notify raises a notification for one consultant.
func (s *Service) Notify(ctx context.Context, consultantID uuid.UUID, title, message, link string) error {
	n, err := s.repo.Create(ctx, Notification{
		ConsultantID: &consultantID,
		Title:        title,
		Message:      message,
		Link:         link,
	})
	if err != nil {
		return err
	}

	s.broker.Publish(realtime.ConsultantGroup(consultantID), realtime.Event{
		Name:    realtime.EventNotification,
		Payload: n,
	})
	return nil
}

// NotifyConsultants raises a broadcast notification for every consultant.
// This is the rule engine's send-notification action target.
func (s *Service) NotifyConsultants(ctx context.Context, title, message, link string) error {
	n, err := s.repo.Create(ctx, Notification{
		Title:   title,
		Message: message,
		Link:    link,
	})
	if err != nil {
		return err
	}

	s.broker.Broadcast(realtime.Event{
		Name:    realtime.EventNotification,
		Payload: n,
	})
	return nil
}

// List returns a consultant's notification feed.
func (s *Service) List(ctx context.Context, consultantID uuid.UUID, limit int) ([]Notification, error) {
	return s.repo.ListForConsultant(ctx, consultantID, limit)
}

// MarkRead stamps one notification as read.
func (s *Service) MarkRead(ctx context.Context, id, consultantID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, consultantID)
}
