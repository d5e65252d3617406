package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-webinar/backend/internal/models"
)

// ErrNotFound is returned when the chat message does not exist.
var ErrNotFound = errors.New("message not found")

// historyLimit caps how many messages are replayed on room join.
const historyLimit = 50

// Repository handles chat message persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new message and fills in its id and timestamp.
func (r *Repository) Insert(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (webinar_id, user_id, body, is_question)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, m.WebinarID, m.UserID, m.Body, m.IsQuestion).
		Scan(&m.ID, &m.CreatedAt)
}

// History returns the most recent non-moderated messages of the webinar in
// chronological order, with author identity resolved.
func (r *Repository) History(ctx context.Context, webinarID uuid.UUID) ([]models.ChatMessage, error) {
	const q = `SELECT * FROM (
			SELECT m.id, m.webinar_id, m.user_id, u.name, u.role,
				m.body, m.is_question, m.answered, m.moderated, m.created_at
			FROM chat_messages m
			JOIN users u ON m.user_id = u.id
			WHERE m.webinar_id = $1 AND m.moderated = FALSE
			ORDER BY m.created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, webinarID, historyLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.WebinarID, &m.UserID, &m.AuthorName, &m.AuthorRole,
			&m.Body, &m.IsQuestion, &m.Answered, &m.Moderated, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetByID returns a single message, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	const q = `SELECT id, webinar_id, user_id, body, is_question, answered, moderated, created_at
		FROM chat_messages WHERE id = $1`
	var m models.ChatMessage
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.WebinarID, &m.UserID,
		&m.Body, &m.IsQuestion, &m.Answered, &m.Moderated, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetModerated soft-deletes the message.
func (r *Repository) SetModerated(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET moderated = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnswered marks the message as answered.
func (r *Repository) SetAnswered(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET answered = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
