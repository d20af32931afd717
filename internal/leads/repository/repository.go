// Package repository provides persistence for leads. The orchestrator's write
// set is deliberately narrow: stage, qualification fields, score, assignment,
// and last-contact. Full lead CRUD lives outside this core.
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
	opGetByID          = "leads.repository.get_by_id"
	opFindOrCreate     = "leads.repository.find_or_create"
	opUpdatePipeline   = "leads.repository.update_pipeline"
	opAddScore         = "leads.repository.add_score"
	opAssign           = "leads.repository.assign"
	opTouchLastContact = "leads.repository.touch_last_contact"
	opListSilentSince  = "leads.repository.list_silent_since"

	errRepoNotConfigured = "leads repository not configured"
)

// Lead is the customer record being qualified.
type Lead struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Phone                string     `json:"phone"`
	Email                *string    `json:"email,omitempty"`
	Stage                string     `json:"stage"`
	Destination          *string    `json:"destination,omitempty"`
	TravelWindow         *string    `json:"travelWindow,omitempty"`
	Budget               *float64   `json:"budget,omitempty"`
	PartySize            *int       `json:"partySize,omitempty"`
	Qualified            bool       `json:"qualified"`
	Score                int        `json:"score"`
	AssignedConsultantID *uuid.UUID `json:"assignedConsultantId,omitempty"`
	LastContactAt        *time.Time `json:"lastContactAt,omitempty"`
	Version              int        `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Qualification converts stored optional fields to the domain value type.
func (l Lead) Qualification() domain.Qualification {
	q := domain.Qualification{}
	if l.Destination != nil {
		q.Destination = *l.Destination
	}
	if l.TravelWindow != nil {
		q.TravelWindow = *l.TravelWindow
	}
	if l.Budget != nil {
		q.Budget = *l.Budget
	}
	if l.PartySize != nil {
		q.PartySize = *l.PartySize
	}
	return q
}

// Repository persists leads in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, name, phone, email, stage, destination, travel_window, budget,
	party_size, qualified, score, assigned_consultant_id, last_contact_at,
	version, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &l.Email, &l.Stage, &l.Destination,
		&l.TravelWindow, &l.Budget, &l.PartySize, &l.Qualified, &l.Score,
		&l.AssignedConsultantID, &l.LastContactAt, &l.Version, &l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

// GetByID fetches a single lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	if r == nil || r.pool == nil {
		return Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	l, err := scanLead(r.pool.QueryRow(ctx, `SELECT`+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found").WithOp(opGetByID)
	}
	if err != nil {
		return Lead{}, apperr.Internal(fmt.Sprintf("get lead failed: %v", err)).WithOp(opGetByID)
	}
	return l, nil
}

// FindOrCreateByPhone returns the lead for a phone number, creating a New-stage
// record when none exists. Used by channel webhooks on first contact. The bool
// result reports whether a new lead was inserted.
func (r *Repository) FindOrCreateByPhone(ctx context.Context, phone, name string) (Lead, bool, error) {
	if r == nil || r.pool == nil {
		return Lead{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opFindOrCreate)
	}
	if phone == "" {
		return Lead{}, false, apperr.Validation("phone is required").WithOp(opFindOrCreate)
	}

	// xmax = 0 distinguishes a fresh insert from a conflict-updated row.
	var l Lead
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (name, phone, stage)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE SET updated_at = now()
		RETURNING`+leadColumns+`, (xmax = 0)`, name, phone, domain.StageNew).Scan(
		&l.ID, &l.Name, &l.Phone, &l.Email, &l.Stage, &l.Destination,
		&l.TravelWindow, &l.Budget, &l.PartySize, &l.Qualified, &l.Score,
		&l.AssignedConsultantID, &l.LastContactAt, &l.Version, &l.CreatedAt,
		&l.UpdatedAt, &inserted,
	)
	if err != nil {
		return Lead{}, false, apperr.Internal(fmt.Sprintf("find or create lead failed: %v", err)).WithOp(opFindOrCreate)
	}
	return l, inserted, nil
}

// PipelineUpdate carries the fields the orchestrator may write. Nil fields are
// left untouched.
type PipelineUpdate struct {
	Stage        *string
	Destination  *string
	TravelWindow *string
	Budget       *float64
	PartySize    *int
	Qualified    *bool
}

// UpdatePipeline applies a pipeline update using optimistic concurrency: the
// write only succeeds when expectedVersion still matches. Losers receive a
// Conflict error and must re-read before retrying.
func (r *Repository) UpdatePipeline(ctx context.Context, id uuid.UUID, expectedVersion int, u PipelineUpdate) (Lead, error) {
	if r == nil || r.pool == nil {
		return Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdatePipeline)
	}

	l, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			stage = COALESCE($3, stage),
			destination = COALESCE($4, destination),
			travel_window = COALESCE($5, travel_window),
			budget = COALESCE($6, budget),
			party_size = COALESCE($7, party_size),
			qualified = COALESCE($8, qualified),
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING`+leadColumns,
		id, expectedVersion, u.Stage, u.Destination, u.TravelWindow, u.Budget, u.PartySize, u.Qualified))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.Conflict("lead was modified concurrently").WithOp(opUpdatePipeline)
	}
	if err != nil {
		return Lead{}, apperr.Internal(fmt.Sprintf("update lead pipeline failed: %v", err)).WithOp(opUpdatePipeline)
	}
	return l, nil
}

// AddScore adds delta to the lead score, clamped to [0,100] in the database so
// concurrent adjustments cannot escape the range.
func (r *Repository) AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opAddScore)
	}

	var score int
	err := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET score = LEAST(100, GREATEST(0, score + $2)), version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING score
	`, id, delta).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("lead not found").WithOp(opAddScore)
	}
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("add lead score failed: %v", err)).WithOp(opAddScore)
	}
	return score, nil
}

// Assign sets the lead's owning consultant.
func (r *Repository) Assign(ctx context.Context, id uuid.UUID, consultantID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opAssign)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_consultant_id = $2, version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, consultantID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("assign lead failed: %v", err)).WithOp(opAssign)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found").WithOp(opAssign)
	}
	return nil
}

// TouchLastContact stamps the last inbound/outbound contact time.
func (r *Repository) TouchLastContact(ctx context.Context, id uuid.UUID, at time.Time) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opTouchLastContact)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET last_contact_at = $2, updated_at = now() WHERE id = $1
	`, id, at)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("touch last contact failed: %v", err)).WithOp(opTouchLastContact)
	}
	return nil
}

// ListSilentSince returns non-terminal leads whose last contact predates the
// cutoff. Drives the no-contact automation trigger.
func (r *Repository) ListSilentSince(ctx context.Context, cutoff time.Time) ([]Lead, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListSilentSince)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE last_contact_at IS NOT NULL
		  AND last_contact_at < $1
		  AND stage NOT IN ($2, $3, $4)
		ORDER BY last_contact_at ASC
	`, cutoff, domain.StageClosed, domain.StageCancelled, domain.StageDisqualified)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list silent leads failed: %v", err)).WithOp(opListSilentSince)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, scanErr := scanLead(rows)
		if scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan lead failed: %v", scanErr)).WithOp(opListSilentSince)
		}
		out = append(out, l)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate leads failed: %v", rowsErr)).WithOp(opListSilentSince)
	}
	return out, nil
}
