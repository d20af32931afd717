// Package notification persists consultant-facing in-app notifications and
// pushes them through the realtime broker.
package notification

import (
	"context"
	"fmt"
	"time"

	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate   = "notification.repository.create"
	opList     = "notification.repository.list"
	opMarkRead = "notification.repository.mark_read"

	errRepoNotConfigured = "notification repository not configured"
)

// Notification is one consultant-facing alert. A nil ConsultantID means the
// notification addresses every consultant.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	ConsultantID *uuid.UUID `json:"consultantId,omitempty"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Link         string     `json:"link,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create persists one notification.
func (r *Repository) Create(ctx context.Context, n Notification) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, consultant_id, title, message, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, n.ID, n.ConsultantID, n.Title, n.Message, n.Link).Scan(&n.CreatedAt)
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

// ListForConsultant returns the consultant's own notifications plus
// broadcasts, newest first.
func (r *Repository) ListForConsultant(ctx context.Context, consultantID uuid.UUID, limit int) ([]Notification, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, consultant_id, title, message, link, read_at, created_at
		FROM notifications
		WHERE consultant_id = $1 OR consultant_id IS NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, consultantID, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list notifications failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.ConsultantID, &n.Title, &n.Message, &n.Link, &n.ReadAt, &n.CreatedAt); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan notification failed: %v", scanErr)).WithOp(opList)
		}
		out = append(out, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}
	return out, nil
}

// MarkRead stamps a notification as read by its addressee.
func (r *Repository) MarkRead(ctx context.Context, id, consultantID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE id = $1 AND (consultant_id = $2 OR consultant_id IS NULL) AND read_at IS NULL
	`, id, consultantID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}
