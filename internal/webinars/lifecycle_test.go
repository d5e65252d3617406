package webinars

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/pkg/apperr"
)

type fakeWebinarStore struct {
	webinars map[uuid.UUID]*models.Webinar
}

func newFakeWebinarStore() *fakeWebinarStore {
	return &fakeWebinarStore{webinars: make(map[uuid.UUID]*models.Webinar)}
}

func (s *fakeWebinarStore) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, ok := s.webinars[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *fakeWebinarStore) SetStatus(_ context.Context, id uuid.UUID, from, to models.WebinarStatus) (bool, error) {
	w, ok := s.webinars[id]
	if !ok || w.Status != from {
		return false, nil
	}
	w.Status = to
	return true, nil
}

type fakeRegLookup struct {
	registered map[string]bool
}

func (f *fakeRegLookup) Exists(_ context.Context, webinarID, userID uuid.UUID) (bool, error) {
	return f.registered[webinarID.String()+"/"+userID.String()], nil
}

func (f *fakeRegLookup) add(webinarID, userID uuid.UUID) {
	if f.registered == nil {
		f.registered = make(map[string]bool)
	}
	f.registered[webinarID.String()+"/"+userID.String()] = true
}

type fakeAttendance struct {
	joins    []uuid.UUID
	closed   []uuid.UUID
	closeErr error
}

func (f *fakeAttendance) RecordJoin(_ context.Context, webinarID, _ uuid.UUID) error {
	f.joins = append(f.joins, webinarID)
	return nil
}

func (f *fakeAttendance) CloseAllOpenIntervals(_ context.Context, webinarID uuid.UUID, _ time.Time) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, webinarID)
	return nil
}

type fakeStats struct {
	metrics []string
}

func (f *fakeStats) Record(_ context.Context, _ uuid.UUID, metric string) {
	f.metrics = append(f.metrics, metric)
}

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) Broadcast(_ uuid.UUID, event string, _ interface{}) {
	f.events = append(f.events, event)
}

type lifecycleFixture struct {
	store      *fakeWebinarStore
	regs       *fakeRegLookup
	attendance *fakeAttendance
	stats      *fakeStats
	rooms      *fakeBroadcaster
	lc         *Lifecycle
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		store:      newFakeWebinarStore(),
		regs:       &fakeRegLookup{},
		attendance: &fakeAttendance{},
		stats:      &fakeStats{},
		rooms:      &fakeBroadcaster{},
	}
	f.lc = NewLifecycle(f.store, f.regs, f.attendance, f.stats, f.rooms, nil)
	return f
}

func (f *lifecycleFixture) addWebinar(status models.WebinarStatus, access models.AccessType, password *string) *models.Webinar {
	w := &models.Webinar{
		ID:           uuid.New(),
		Title:        "Release Review",
		OrganizerID:  uuid.New(),
		Status:       status,
		AccessType:   access,
		RoomPassword: password,
		RoomToken:    "release-review-1-abc",
	}
	f.store.webinars[w.ID] = w
	return w
}

func organizerOf(w *models.Webinar) Actor {
	return Actor{ID: w.OrganizerID, Role: models.RoleOrganizer}
}

func TestStartFromScheduled(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusScheduled, models.AccessOpen, nil)

	change, err := f.lc.Start(context.Background(), w.ID, organizerOf(w))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, change.Status)
	assert.Equal(t, w.RoomToken, change.RoomToken)
	assert.Equal(t, models.StatusLive, f.store.webinars[w.ID].Status)
	assert.Contains(t, f.stats.metrics, models.MetricWebinarStarted)
	assert.Contains(t, f.rooms.events, "status-changed")
	assert.Contains(t, f.attendance.joins, w.ID)
}

func TestStartRequiresScheduled(t *testing.T) {
	for _, status := range []models.WebinarStatus{models.StatusLive, models.StatusEnded, models.StatusCancelled} {
		f := newLifecycleFixture()
		w := f.addWebinar(status, models.AccessOpen, nil)

		_, err := f.lc.Start(context.Background(), w.ID, organizerOf(w))
		assert.True(t, apperr.Is(err, apperr.InvalidTransition), "status %s", status)
	}
}

func TestStartForbiddenForParticipant(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusScheduled, models.AccessOpen, nil)

	_, err := f.lc.Start(context.Background(), w.ID, Actor{ID: uuid.New(), Role: models.RoleParticipant})
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Equal(t, models.StatusScheduled, f.store.webinars[w.ID].Status)
}

func TestStartAllowedForAssignedSpeaker(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusScheduled, models.AccessOpen, nil)
	speakerID := uuid.New()
	f.store.webinars[w.ID].SpeakerID = &speakerID

	_, err := f.lc.Start(context.Background(), w.ID, Actor{ID: speakerID, Role: models.RoleSpeaker})
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, f.store.webinars[w.ID].Status)
}

func TestChangeStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from    models.WebinarStatus
		to      string
		allowed bool
	}{
		{models.StatusScheduled, "live", true},
		{models.StatusScheduled, "cancelled", true},
		{models.StatusScheduled, "ended", false},
		{models.StatusLive, "ended", true},
		{models.StatusLive, "cancelled", true},
		{models.StatusLive, "scheduled", false},
		{models.StatusEnded, "live", false},
		{models.StatusEnded, "scheduled", false},
		{models.StatusCancelled, "live", false},
	}
	for _, tc := range cases {
		f := newLifecycleFixture()
		w := f.addWebinar(tc.from, models.AccessOpen, nil)

		_, err := f.lc.ChangeStatus(context.Background(), w.ID, organizerOf(w), tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.True(t, apperr.Is(err, apperr.InvalidTransition), "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusScheduled, models.AccessOpen, nil)

	_, err := f.lc.ChangeStatus(context.Background(), w.ID, organizerOf(w), "paused")
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestEndClosesOpenIntervals(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusLive, models.AccessOpen, nil)

	_, err := f.lc.ChangeStatus(context.Background(), w.ID, organizerOf(w), "ended")
	require.NoError(t, err)
	assert.Contains(t, f.attendance.closed, w.ID)
}

func TestEndRetryableWhenCloseFails(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusLive, models.AccessOpen, nil)
	ctx := context.Background()
	f.attendance.closeErr = apperr.StorageErr("close interval", assert.AnError)

	_, err := f.lc.ChangeStatus(ctx, w.ID, organizerOf(w), "ended")
	require.Error(t, err)
	assert.Equal(t, models.StatusLive, f.store.webinars[w.ID].Status)
	assert.Empty(t, f.rooms.events)

	// The storage error clears; the same transition succeeds on retry.
	f.attendance.closeErr = nil
	change, err := f.lc.ChangeStatus(ctx, w.ID, organizerOf(w), "ended")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, change.Status)
	assert.Equal(t, models.StatusEnded, f.store.webinars[w.ID].Status)
	assert.Contains(t, f.attendance.closed, w.ID)
}

func TestChangeStatusNotFound(t *testing.T) {
	f := newLifecycleFixture()
	_, err := f.lc.ChangeStatus(context.Background(), uuid.New(), Actor{ID: uuid.New(), Role: models.RoleOrganizer}, "live")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestCheckAccessOpenWebinar(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusLive, models.AccessOpen, nil)

	grant, err := f.lc.CheckAccess(context.Background(), w.ID, uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, w.RoomToken, grant.RoomToken)
	assert.Equal(t, models.AccessOpen, grant.AccessType)
}

func TestCheckAccessInactiveWebinar(t *testing.T) {
	for _, status := range []models.WebinarStatus{models.StatusEnded, models.StatusCancelled} {
		f := newLifecycleFixture()
		w := f.addWebinar(status, models.AccessOpen, nil)

		_, err := f.lc.CheckAccess(context.Background(), w.ID, uuid.New(), "")
		assert.True(t, apperr.Is(err, apperr.NotActive), "status %s", status)
	}
}

func TestCheckAccessMembersOnly(t *testing.T) {
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusLive, models.AccessMembersOnly, nil)
	member := uuid.New()
	f.regs.add(w.ID, member)

	_, err := f.lc.CheckAccess(context.Background(), w.ID, uuid.New(), "")
	assert.True(t, apperr.Is(err, apperr.RegistrationRequired))

	// A supplied secret never substitutes for a registration.
	_, err = f.lc.CheckAccess(context.Background(), w.ID, uuid.New(), "letmein")
	assert.True(t, apperr.Is(err, apperr.RegistrationRequired))

	grant, err := f.lc.CheckAccess(context.Background(), w.ID, member, "")
	require.NoError(t, err)
	assert.Equal(t, w.RoomToken, grant.RoomToken)
}

func TestCheckAccessPassword(t *testing.T) {
	pw := "abcd"
	f := newLifecycleFixture()
	w := f.addWebinar(models.StatusLive, models.AccessPassword, &pw)
	userID := uuid.New()
	ctx := context.Background()

	_, err := f.lc.CheckAccess(ctx, w.ID, userID, "")
	assert.True(t, apperr.Is(err, apperr.PasswordRequired))

	_, err = f.lc.CheckAccess(ctx, w.ID, userID, "wrong")
	assert.True(t, apperr.Is(err, apperr.IncorrectPassword))

	grant, err := f.lc.CheckAccess(ctx, w.ID, userID, "abcd")
	require.NoError(t, err)
	assert.Equal(t, w.RoomToken, grant.RoomToken)
}

func TestNewRoomToken(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token := NewRoomToken("Go Release Party!", at)
	assert.Contains(t, token, "go-release-party-")
	assert.NotEqual(t, token, NewRoomToken("Go Release Party!", at))

	long := NewRoomToken("A very long webinar title that keeps going and going", at)
	assert.LessOrEqual(t, len(long), 30+1+13+1+8)
}
