package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one chat entry in a webinar room. The body is immutable;
// only the Answered and Moderated flags change after insert. A moderated
// message is soft-deleted: kept for audit, excluded from history replay.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	WebinarID  uuid.UUID `json:"webinar_id"`
	UserID     uuid.UUID `json:"user_id"`
	AuthorName string    `json:"author_name,omitempty"`
	AuthorRole Role      `json:"author_role,omitempty"`
	Body       string    `json:"body"`
	IsQuestion bool      `json:"is_question"`
	Answered   bool      `json:"answered"`
	Moderated  bool      `json:"moderated"`
	CreatedAt  time.Time `json:"created_at"`
}
