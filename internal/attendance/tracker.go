// Package attendance derives presence intervals and aggregate metrics from
// join/leave/status events. A registration has at most one open interval at a
// time; re-joining overwrites the start, so only the latest interval counts.
package attendance

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/pkg/apperr"
)

// RegistrationStore is the persistence contract the tracker needs. Joins are
// a single upsert and closes a single guarded update, so concurrent events
// for one (webinar, user) pair serialize at the row without a duration ever
// existing without both timestamps.
type RegistrationStore interface {
	// MarkJoined upserts the registration with attended=true and an open
	// interval starting at 'at' (end and duration cleared).
	MarkJoined(ctx context.Context, webinarID, userID uuid.UUID, at time.Time) error
	// OpenInterval returns the registration with an open interval for the
	// pair, or nil when there is none.
	OpenInterval(ctx context.Context, webinarID, userID uuid.UUID) (*models.Registration, error)
	// CloseInterval sets the end and duration iff the interval is still open.
	CloseInterval(ctx context.Context, registrationID uuid.UUID, end time.Time, durationMinutes int) error
	// ListOpenByWebinar returns every registration of the webinar with an
	// open interval.
	ListOpenByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error)
	// ListByWebinar returns all registrations of the webinar.
	ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error)
}

// Summary is the on-demand attendance aggregate for a webinar.
type Summary struct {
	TotalRegistered    int     `json:"total_registered"`
	TotalAttended      int     `json:"total_attended"`
	TotalNoShow        int     `json:"total_no_show"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
}

// Tracker records presence intervals on registrations.
type Tracker struct {
	store  RegistrationStore
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates an attendance tracker.
func NewTracker(store RegistrationStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// RecordJoin opens (or resumes) a presence interval. A missing registration
// is created on the spot, marked attended: organizers and speakers join
// without registering first.
func (t *Tracker) RecordJoin(ctx context.Context, webinarID, userID uuid.UUID) error {
	if err := t.store.MarkJoined(ctx, webinarID, userID, t.now()); err != nil {
		return apperr.StorageErr("record join", err)
	}
	return nil
}

// RecordLeave closes the open interval for the pair if one exists; no-op
// otherwise. Duration is the rounded minute difference, never negative.
func (t *Tracker) RecordLeave(ctx context.Context, webinarID, userID uuid.UUID) error {
	reg, err := t.store.OpenInterval(ctx, webinarID, userID)
	if err != nil {
		return apperr.StorageErr("find open interval", err)
	}
	if reg == nil {
		return nil
	}
	return t.close(ctx, reg, t.now())
}

// CloseAllOpenIntervals applies RecordLeave semantics to every open interval
// of the webinar, as of asOf. Intervals of other webinars are untouched.
// Used when a webinar transitions to ended.
func (t *Tracker) CloseAllOpenIntervals(ctx context.Context, webinarID uuid.UUID, asOf time.Time) error {
	open, err := t.store.ListOpenByWebinar(ctx, webinarID)
	if err != nil {
		return apperr.StorageErr("list open intervals", err)
	}
	for i := range open {
		if err := t.close(ctx, &open[i], asOf); err != nil {
			return err
		}
	}
	if len(open) > 0 {
		t.logger.Info("closed open presence intervals",
			zap.String("webinar_id", webinarID.String()), zap.Int("count", len(open)))
	}
	return nil
}

func (t *Tracker) close(ctx context.Context, reg *models.Registration, end time.Time) error {
	duration := DurationMinutes(*reg.AttendanceStart, end)
	if err := t.store.CloseInterval(ctx, reg.ID, end, duration); err != nil {
		return apperr.StorageErr("close interval", err)
	}
	return nil
}

// OpenCount returns how many presence intervals are currently open for the
// webinar.
func (t *Tracker) OpenCount(ctx context.Context, webinarID uuid.UUID) (int, error) {
	open, err := t.store.ListOpenByWebinar(ctx, webinarID)
	if err != nil {
		return 0, apperr.StorageErr("list open intervals", err)
	}
	return len(open), nil
}

// Aggregate computes registered/attended totals and the average closed
// duration on demand. No cached value is stored; the result is always
// derivable from registration rows.
func (t *Tracker) Aggregate(ctx context.Context, webinarID uuid.UUID) (*Summary, error) {
	regs, err := t.store.ListByWebinar(ctx, webinarID)
	if err != nil {
		return nil, apperr.StorageErr("list registrations", err)
	}
	s := &Summary{TotalRegistered: len(regs)}
	var durationSum, durationCount int
	for _, reg := range regs {
		if reg.Attended {
			s.TotalAttended++
		}
		if reg.DurationMinutes != nil {
			durationSum += *reg.DurationMinutes
			durationCount++
		}
	}
	s.TotalNoShow = s.TotalRegistered - s.TotalAttended
	if durationCount > 0 {
		s.AvgDurationMinutes = float64(durationSum) / float64(durationCount)
	}
	return s, nil
}

// DurationMinutes is the rounded minute span between start and end, clamped
// to zero.
func DurationMinutes(start, end time.Time) int {
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes < 0 {
		return 0
	}
	return minutes
}
