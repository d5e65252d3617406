package webinars

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/pkg/apperr"
)

// Actor is the authenticated user performing a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

// WebinarStore is the persistence contract of the state machine.
type WebinarStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.WebinarStatus) (bool, error)
}

// RegistrationLookup checks membership for members-only access.
type RegistrationLookup interface {
	Exists(ctx context.Context, webinarID, userID uuid.UUID) (bool, error)
}

// AttendanceTracker is the presence contract used on status transitions.
type AttendanceTracker interface {
	RecordJoin(ctx context.Context, webinarID, userID uuid.UUID) error
	CloseAllOpenIntervals(ctx context.Context, webinarID uuid.UUID, asOf time.Time) error
}

// StatRecorder records metric events; it never fails the caller.
type StatRecorder interface {
	Record(ctx context.Context, webinarID uuid.UUID, metric string)
}

// Broadcaster pushes an event to every connection in a webinar room.
type Broadcaster interface {
	Broadcast(webinarID uuid.UUID, event string, payload interface{})
}

// StatusChange is the result of a lifecycle transition.
type StatusChange struct {
	WebinarID uuid.UUID            `json:"webinar_id"`
	Status    models.WebinarStatus `json:"status"`
	RoomToken string               `json:"room_token"`
}

// AccessGrant is the successful result of an access check. It carries what
// the client needs to enter the room and never includes the room password.
type AccessGrant struct {
	WebinarID  uuid.UUID           `json:"webinar_id"`
	Title      string              `json:"title"`
	AccessType models.AccessType   `json:"access_type"`
	RoomToken  string              `json:"room_token"`
	Flags      models.FeatureFlags `json:"flags"`
}

// Lifecycle owns webinar status transitions and room access rules.
type Lifecycle struct {
	store      WebinarStore
	regs       RegistrationLookup
	attendance AttendanceTracker
	stats      StatRecorder
	rooms      Broadcaster
	logger     *zap.Logger
	now        func() time.Time
}

// NewLifecycle creates the webinar state machine.
func NewLifecycle(store WebinarStore, regs RegistrationLookup, attendance AttendanceTracker,
	stats StatRecorder, rooms Broadcaster, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		store:      store,
		regs:       regs,
		attendance: attendance,
		stats:      stats,
		rooms:      rooms,
		logger:     logger,
		now:        time.Now,
	}
}

func (l *Lifecycle) get(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, err := l.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "webinar not found")
		}
		return nil, apperr.StorageErr("load webinar", err)
	}
	return w, nil
}

func canManage(w *models.Webinar, actor Actor) bool {
	return w.OrganizerID == actor.ID ||
		(w.SpeakerID != nil && *w.SpeakerID == actor.ID) ||
		actor.Role == models.RoleOrganizer
}

// Start transitions scheduled -> live, records the started stat, opens the
// actor's presence interval and notifies the room.
func (l *Lifecycle) Start(ctx context.Context, id uuid.UUID, actor Actor) (*StatusChange, error) {
	w, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(w, actor) {
		return nil, apperr.New(apperr.Forbidden, "only organizers or speakers can start the webinar")
	}
	if w.Status != models.StatusScheduled {
		return nil, apperr.New(apperr.InvalidTransition, "webinar is not scheduled")
	}
	change, err := l.transition(ctx, w, models.StatusLive)
	if err != nil {
		return nil, err
	}
	// Organizer/speaker joining first implicitly registers and opens presence.
	if err := l.attendance.RecordJoin(ctx, id, actor.ID); err != nil {
		l.logger.Warn("open presence on start failed",
			zap.String("webinar_id", id.String()), zap.Error(err))
	}
	return change, nil
}

// ChangeStatus applies a generalized transition to live, ended or cancelled.
func (l *Lifecycle) ChangeStatus(ctx context.Context, id uuid.UUID, actor Actor, target string) (*StatusChange, error) {
	if !models.ValidStatus(target) {
		return nil, apperr.New(apperr.Validation, "invalid status")
	}
	w, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(w, actor) {
		return nil, apperr.New(apperr.Forbidden, "not authorized to change webinar status")
	}
	return l.transition(ctx, w, models.WebinarStatus(target))
}

func (l *Lifecycle) transition(ctx context.Context, w *models.Webinar, target models.WebinarStatus) (*StatusChange, error) {
	if !models.CanTransition(w.Status, target) {
		return nil, apperr.New(apperr.InvalidTransition, "cannot transition from "+string(w.Status)+" to "+string(target))
	}
	// Presence intervals close before the status commit: a failed close leaves
	// the webinar live, so the transition stays retryable. The guarded close is
	// idempotent, so a retry after a partial close is safe.
	if target == models.StatusEnded {
		if err := l.attendance.CloseAllOpenIntervals(ctx, w.ID, l.now()); err != nil {
			l.logger.Error("close open intervals failed",
				zap.String("webinar_id", w.ID.String()), zap.Error(err))
			return nil, err
		}
	}

	swapped, err := l.store.SetStatus(ctx, w.ID, w.Status, target)
	if err != nil {
		return nil, apperr.StorageErr("update status", err)
	}
	if !swapped {
		return nil, apperr.New(apperr.Conflict, "webinar status changed concurrently")
	}

	if target == models.StatusLive {
		l.stats.Record(ctx, w.ID, models.MetricWebinarStarted)
	}

	change := &StatusChange{WebinarID: w.ID, Status: target, RoomToken: w.RoomToken}
	l.rooms.Broadcast(w.ID, "status-changed", change)
	l.logger.Info("webinar status changed",
		zap.String("webinar_id", w.ID.String()),
		zap.String("from", string(w.Status)), zap.String("to", string(target)))
	return change, nil
}

// CheckAccess evaluates, in order: the webinar must be scheduled or live;
// members-only rooms require a registration; password rooms require the exact
// room password. The grant never echoes the password back.
func (l *Lifecycle) CheckAccess(ctx context.Context, id, userID uuid.UUID, suppliedPassword string) (*AccessGrant, error) {
	w, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.IsJoinable() {
		return nil, apperr.New(apperr.NotActive, "webinar is not active")
	}

	if w.AccessType == models.AccessMembersOnly {
		registered, err := l.regs.Exists(ctx, id, userID)
		if err != nil {
			return nil, apperr.StorageErr("check registration", err)
		}
		if !registered {
			return nil, apperr.New(apperr.RegistrationRequired, "registration required for this webinar")
		}
	}

	if w.AccessType == models.AccessPassword {
		if suppliedPassword == "" {
			return nil, apperr.New(apperr.PasswordRequired, "password required")
		}
		if w.RoomPassword == nil || suppliedPassword != *w.RoomPassword {
			return nil, apperr.New(apperr.IncorrectPassword, "incorrect password")
		}
	}

	return &AccessGrant{
		WebinarID:  w.ID,
		Title:      w.Title,
		AccessType: w.AccessType,
		RoomToken:  w.RoomToken,
		Flags:      w.Flags,
	}, nil
}
