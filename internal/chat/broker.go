package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/pkg/apperr"
)

// MessageStore is the persistence contract of the broker.
type MessageStore interface {
	Insert(ctx context.Context, m *models.ChatMessage) error
	History(ctx context.Context, webinarID uuid.UUID) ([]models.ChatMessage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	SetModerated(ctx context.Context, id uuid.UUID) error
	SetAnswered(ctx context.Context, id uuid.UUID) error
}

// Registry fans events out to room connections. SendTo targets one connection
// on this instance; Broadcast and BroadcastExcept reach the whole room across
// instances.
type Registry interface {
	Broadcast(webinarID uuid.UUID, event string, payload interface{})
	BroadcastExcept(webinarID uuid.UUID, clientID string, event string, payload interface{})
	SendTo(webinarID uuid.UUID, clientID string, event string, payload interface{})
}

// Attendance records presence from room join/leave events.
type Attendance interface {
	RecordJoin(ctx context.Context, webinarID, userID uuid.UUID) error
	RecordLeave(ctx context.Context, webinarID, userID uuid.UUID) error
}

// StatRecorder records metric events; it never fails the caller.
type StatRecorder interface {
	Record(ctx context.Context, webinarID uuid.UUID, metric string)
}

// Member identifies one connected room participant.
type Member struct {
	ClientID string
	UserID   uuid.UUID
	Name     string
	Role     models.Role
}

// Broker implements room chat semantics on top of the registry: message
// fan-out, history replay on join, presence events and moderation.
type Broker struct {
	store      MessageStore
	registry   Registry
	attendance Attendance
	stats      StatRecorder
	logger     *zap.Logger
}

// NewBroker creates a chat broker.
func NewBroker(store MessageStore, registry Registry, attendance Attendance,
	stats StatRecorder, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{store: store, registry: registry, attendance: attendance, stats: stats, logger: logger}
}

// SendMessage persists the message and fans it out to the room, including the
// sender, so every client renders from the same event.
func (b *Broker) SendMessage(ctx context.Context, webinarID uuid.UUID, author Member, body string, isQuestion bool) (*models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.New(apperr.Validation, "message body is empty")
	}
	m := &models.ChatMessage{
		WebinarID:  webinarID,
		UserID:     author.UserID,
		AuthorName: author.Name,
		AuthorRole: author.Role,
		Body:       body,
		IsQuestion: isQuestion,
	}
	if err := b.store.Insert(ctx, m); err != nil {
		return nil, apperr.StorageErr("store message", err)
	}
	b.registry.Broadcast(webinarID, "new-message", m)
	return m, nil
}

// JoinRoom replays history to the joiner, announces the join to everyone
// else, and opens the presence interval. History or presence failures are
// logged, not fatal: the connection stays usable.
func (b *Broker) JoinRoom(ctx context.Context, webinarID uuid.UUID, member Member) {
	history, err := b.store.History(ctx, webinarID)
	if err != nil {
		b.logger.Warn("history replay failed",
			zap.String("webinar_id", webinarID.String()), zap.Error(err))
	} else {
		b.registry.SendTo(webinarID, member.ClientID, "chat-history", history)
	}

	b.registry.BroadcastExcept(webinarID, member.ClientID, "user-joined", memberEvent(member))

	if err := b.attendance.RecordJoin(ctx, webinarID, member.UserID); err != nil {
		b.logger.Warn("record join failed",
			zap.String("webinar_id", webinarID.String()),
			zap.String("user_id", member.UserID.String()), zap.Error(err))
	}
	b.stats.Record(ctx, webinarID, models.MetricUserJoined)
}

// LeaveRoom announces the departure. The presence interval is closed only on
// an explicit leave; a dropped connection keeps it open so a reconnect
// resumes the same session.
func (b *Broker) LeaveRoom(ctx context.Context, webinarID uuid.UUID, member Member, explicit bool) {
	b.registry.BroadcastExcept(webinarID, member.ClientID, "user-left", memberEvent(member))
	if !explicit {
		return
	}
	if err := b.attendance.RecordLeave(ctx, webinarID, member.UserID); err != nil {
		b.logger.Warn("record leave failed",
			zap.String("webinar_id", webinarID.String()),
			zap.String("user_id", member.UserID.String()), zap.Error(err))
	}
}

// Moderate applies a moderation action to a message in the room. Only
// organizers and speakers may moderate.
func (b *Broker) Moderate(ctx context.Context, webinarID uuid.UUID, moderator Member, messageID uuid.UUID, action string) error {
	if moderator.Role != models.RoleOrganizer && moderator.Role != models.RoleSpeaker {
		return apperr.New(apperr.Forbidden, "only organizers and speakers can moderate")
	}
	m, err := b.store.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.NotFound, "message not found")
		}
		return apperr.StorageErr("load message", err)
	}
	if m.WebinarID != webinarID {
		return apperr.New(apperr.NotFound, "message not found")
	}

	switch action {
	case "delete":
		if err := b.store.SetModerated(ctx, messageID); err != nil {
			return apperr.StorageErr("moderate message", err)
		}
		b.registry.Broadcast(webinarID, "message-deleted", map[string]interface{}{
			"message_id":   messageID,
			"moderator_id": moderator.UserID,
		})
	case "answer":
		if err := b.store.SetAnswered(ctx, messageID); err != nil {
			return apperr.StorageErr("mark answered", err)
		}
		b.registry.Broadcast(webinarID, "question-answered", map[string]interface{}{
			"message_id":  messageID,
			"answered_by": moderator.UserID,
		})
	default:
		return apperr.New(apperr.Validation, "unknown moderation action")
	}
	return nil
}

func memberEvent(m Member) map[string]interface{} {
	return map[string]interface{}{
		"user_id": m.UserID,
		"name":    m.Name,
		"role":    m.Role,
		"at":      time.Now().UTC(),
	}
}
