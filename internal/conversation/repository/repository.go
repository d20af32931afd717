// Package repository persists conversations and their append-only message
// log. The conversation row carries a version column: every state write is an
// optimistic compare-and-write, and losing writers must re-read and retry.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripflow_backend/internal/conversation/domain"
	"tripflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByID       = "conversation.repository.get_by_id"
	opFindOrCreate  = "conversation.repository.find_or_create_open"
	opUpdateState   = "conversation.repository.update_state"
	opAppendMessage = "conversation.repository.append_message"
	opListMessages  = "conversation.repository.list_messages"
	opList          = "conversation.repository.list"

	pgUniqueViolation = "23505"

	errRepoNotConfigured = "conversation repository not configured"
)

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	Sender         string     `json:"sender"`
	Text           string     `json:"text"`
	AttachmentKey  *string    `json:"attachmentKey,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

const conversationColumns = `
	id, lead_id, channel, mode, status,
	handoff_reason, handoff_requested_at, handoff_accepted_at,
	consultant_id, ai_turns, version, created_at, updated_at`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(
		&c.ID, &c.LeadID, &c.Channel, &c.Mode, &c.Status,
		&c.HandoffReason, &c.HandoffRequestedAt, &c.HandoffAcceptedAt,
		&c.ConsultantID, &c.AITurns, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// Repository stores conversations in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches one conversation.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	if r == nil || r.pool == nil {
		return domain.Conversation{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, apperr.NotFound("conversation not found").WithOp(opGetByID)
	}
	if err != nil {
		return domain.Conversation{}, apperr.Internal(fmt.Sprintf("get conversation failed: %v", err)).WithOp(opGetByID)
	}
	return c, nil
}

// FindOrCreateOpen returns the open conversation for a lead/channel pair,
// creating one in AI mode when none exists. A partial unique index on open
// conversations serializes concurrent creation; the loser retries the select.
func (r *Repository) FindOrCreateOpen(ctx context.Context, leadID uuid.UUID, channel string) (domain.Conversation, error) {
	if r == nil || r.pool == nil {
		return domain.Conversation{}, apperr.Internal(errRepoNotConfigured).WithOp(opFindOrCreate)
	}

	find := func() (domain.Conversation, error) {
		return scanConversation(r.pool.QueryRow(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations
			WHERE lead_id = $1 AND channel = $2 AND status != $3
			ORDER BY created_at DESC
			LIMIT 1
		`, leadID, channel, domain.StatusClosed))
	}

	c, err := find()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, apperr.Internal(fmt.Sprintf("find conversation failed: %v", err)).WithOp(opFindOrCreate)
	}

	c, err = scanConversation(r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, lead_id, channel, mode, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+conversationColumns,
		uuid.New(), leadID, channel, domain.ModeAI, domain.StatusActive))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// Lost the creation race; the winner's row is there now.
			if c, err = find(); err == nil {
				return c, nil
			}
		}
		return domain.Conversation{}, apperr.Internal(fmt.Sprintf("create conversation failed: %v", err)).WithOp(opFindOrCreate)
	}
	return c, nil
}

// UpdateState writes the conversation's mutable state, guarded by the version
// read earlier. Returns a conflict when another writer committed first; the
// caller must re-read and retry its transition.
func (r *Repository) UpdateState(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if r == nil || r.pool == nil {
		return domain.Conversation{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateState)
	}

	updated, err := scanConversation(r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET mode = $3, status = $4,
		    handoff_reason = $5, handoff_requested_at = $6, handoff_accepted_at = $7,
		    consultant_id = $8, ai_turns = $9,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+conversationColumns,
		c.ID, c.Version,
		c.Mode, c.Status,
		c.HandoffReason, c.HandoffRequestedAt, c.HandoffAcceptedAt,
		c.ConsultantID, c.AITurns))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, apperr.Conflict("conversation was modified concurrently").WithOp(opUpdateState)
	}
	if err != nil {
		return domain.Conversation{}, apperr.Internal(fmt.Sprintf("update conversation failed: %v", err)).WithOp(opUpdateState)
	}
	return updated, nil
}

// AppendMessage adds one entry to the conversation's log.
func (r *Repository) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if r == nil || r.pool == nil {
		return Message{}, apperr.Internal(errRepoNotConfigured).WithOp(opAppendMessage)
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, sender, text, attachment_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.ConversationID, m.Sender, m.Text, m.AttachmentKey).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, apperr.Internal(fmt.Sprintf("append message failed: %v", err)).WithOp(opAppendMessage)
	}
	return m, nil
}

// ListMessages returns the conversation's log in append order.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListMessages)
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender, text, attachment_key, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list messages failed: %v", err)).WithOp(opListMessages)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if scanErr := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Text, &m.AttachmentKey, &m.CreatedAt); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan message failed: %v", scanErr)).WithOp(opListMessages)
		}
		out = append(out, m)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate messages failed: %v", rowsErr)).WithOp(opListMessages)
	}
	return out, nil
}

// List returns conversations, optionally filtered by status, newest first.
func (r *Repository) List(ctx context.Context, status string, limit int) ([]domain.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list conversations failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, scanErr := scanConversation(rows)
		if scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan conversation failed: %v", scanErr)).WithOp(opList)
		}
		out = append(out, c)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate conversations failed: %v", rowsErr)).WithOp(opList)
	}
	return out, nil
}
