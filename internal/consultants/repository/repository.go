// Package repository provides read access to consultants. The core never
// mutates consultant records; it only reads them for authentication and
// handoff assignment.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripflow_backend/internal/leads/domain"
	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByID            = "consultants.repository.get_by_id"
	opGetByEmail         = "consultants.repository.get_by_email"
	opListActiveWithLoad = "consultants.repository.list_active_with_load"

	errRepoNotConfigured = "consultants repository not configured"
)

// Consultant is a human operator who can own handed-off conversations.
type Consultant struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	Active               bool      `json:"active"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Load pairs a consultant with their currently-open lead count. The count is
// computed per call, not cached; minor staleness under concurrent assignment
// is acceptable.
type Load struct {
	Consultant Consultant
	OpenLeads  int
}

// Repository reads consultants from postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a consultants repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches one consultant.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Consultant, error) {
	if r == nil || r.pool == nil {
		return Consultant{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	var c Consultant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, active, notifications_enabled, created_at
		FROM consultants WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Active, &c.NotificationsEnabled, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Consultant{}, apperr.NotFound("consultant not found").WithOp(opGetByID)
	}
	if err != nil {
		return Consultant{}, apperr.Internal(fmt.Sprintf("get consultant failed: %v", err)).WithOp(opGetByID)
	}
	return c, nil
}

// GetByEmail fetches one consultant by login email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Consultant, error) {
	if r == nil || r.pool == nil {
		return Consultant{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByEmail)
	}

	var c Consultant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, active, notifications_enabled, created_at
		FROM consultants WHERE lower(email) = lower($1)
	`, email).Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Active, &c.NotificationsEnabled, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Consultant{}, apperr.NotFound("consultant not found").WithOp(opGetByEmail)
	}
	if err != nil {
		return Consultant{}, apperr.Internal(fmt.Sprintf("get consultant by email failed: %v", err)).WithOp(opGetByEmail)
	}
	return c, nil
}

// ListActiveWithLoad returns active consultants with notifications enabled,
// each with their open (non-terminal) lead count, ordered by earliest-created
// for deterministic tie-breaking.
func (r *Repository) ListActiveWithLoad(ctx context.Context) ([]Load, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListActiveWithLoad)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.name, c.email, c.password_hash, c.active, c.notifications_enabled, c.created_at,
		       COUNT(l.id) FILTER (WHERE l.stage NOT IN ($1, $2, $3)) AS open_leads
		FROM consultants c
		LEFT JOIN leads l ON l.assigned_consultant_id = c.id
		WHERE c.active AND c.notifications_enabled
		GROUP BY c.id
		ORDER BY c.created_at ASC
	`, domain.StageClosed, domain.StageCancelled, domain.StageDisqualified)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list consultant load failed: %v", err)).WithOp(opListActiveWithLoad)
	}
	defer rows.Close()

	var out []Load
	for rows.Next() {
		var item Load
		if scanErr := rows.Scan(
			&item.Consultant.ID, &item.Consultant.Name, &item.Consultant.Email,
			&item.Consultant.PasswordHash, &item.Consultant.Active,
			&item.Consultant.NotificationsEnabled, &item.Consultant.CreatedAt,
			&item.OpenLeads,
		); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan consultant load failed: %v", scanErr)).WithOp(opListActiveWithLoad)
		}
		out = append(out, item)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate consultant load failed: %v", rowsErr)).WithOp(opListActiveWithLoad)
	}
	return out, nil
}
