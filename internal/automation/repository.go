package automation

import (
	"context"
	"fmt"
	"time"

	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opListActiveByTrigger = "automation.repository.list_active_by_trigger"
	opCreateTask          = "automation.repository.create_task"

	errRepoNotConfigured = "automation repository not configured"
)

// Repository reads automation rules and writes follow-up tasks.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveByTrigger loads the active rules for one trigger, decoding
// condition and action payloads into their typed forms. A rule that fails to
// decode is skipped with a log-worthy error rather than poisoning the batch.
func (r *Repository) ListActiveByTrigger(ctx context.Context, trigger string) ([]Rule, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListActiveByTrigger)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, trigger, conditions, actions, active, created_at
		FROM automation_rules
		WHERE trigger = $1 AND active
		ORDER BY created_at ASC
	`, trigger)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list rules failed: %v", err)).WithOp(opListActiveByTrigger)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			rule          Rule
			rawConditions []byte
			rawActions    []byte
		)
		if scanErr := rows.Scan(&rule.ID, &rule.Name, &rule.Trigger, &rawConditions, &rawActions, &rule.Active, &rule.CreatedAt); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan rule failed: %v", scanErr)).WithOp(opListActiveByTrigger)
		}
		if rule.Conditions, err = DecodeConditions(rawConditions); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("rule %s: %v", rule.ID, err)).WithOp(opListActiveByTrigger)
		}
		if rule.Actions, err = DecodeActions(rawActions); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("rule %s: %v", rule.ID, err)).WithOp(opListActiveByTrigger)
		}
		out = append(out, rule)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate rules failed: %v", rowsErr)).WithOp(opListActiveByTrigger)
	}
	return out, nil
}

// CreateTask records a follow-up task for a lead.
func (r *Repository) CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueAt time.Time) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opCreateTask)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, lead_id, title, description, due_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), leadID, title, description, dueAt)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("create task failed: %v", err)).WithOp(opCreateTask)
	}
	return nil
}
