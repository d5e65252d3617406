package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-webinar/backend/internal/models"
)

type fakeStore struct {
	regs map[string]*models.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{regs: make(map[string]*models.Registration)}
}

func key(webinarID, userID uuid.UUID) string {
	return webinarID.String() + "/" + userID.String()
}

func (s *fakeStore) MarkJoined(_ context.Context, webinarID, userID uuid.UUID, at time.Time) error {
	k := key(webinarID, userID)
	reg, ok := s.regs[k]
	if !ok {
		reg = &models.Registration{ID: uuid.New(), WebinarID: webinarID, UserID: userID, RegisteredAt: at}
		s.regs[k] = reg
	}
	start := at
	reg.Attended = true
	reg.AttendanceStart = &start
	reg.AttendanceEnd = nil
	reg.DurationMinutes = nil
	return nil
}

func (s *fakeStore) OpenInterval(_ context.Context, webinarID, userID uuid.UUID) (*models.Registration, error) {
	reg, ok := s.regs[key(webinarID, userID)]
	if !ok || !reg.HasOpenInterval() {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (s *fakeStore) CloseInterval(_ context.Context, registrationID uuid.UUID, end time.Time, durationMinutes int) error {
	for _, reg := range s.regs {
		if reg.ID == registrationID && reg.HasOpenInterval() {
			e := end
			d := durationMinutes
			reg.AttendanceEnd = &e
			reg.DurationMinutes = &d
		}
	}
	return nil
}

func (s *fakeStore) ListOpenByWebinar(_ context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range s.regs {
		if reg.WebinarID == webinarID && reg.HasOpenInterval() {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByWebinar(_ context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range s.regs {
		if reg.WebinarID == webinarID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

// register adds a row without an open interval (explicit registration only).
func (s *fakeStore) register(webinarID, userID uuid.UUID) {
	s.regs[key(webinarID, userID)] = &models.Registration{
		ID: uuid.New(), WebinarID: webinarID, UserID: userID, RegisteredAt: time.Now(),
	}
}

func (s *fakeStore) get(webinarID, userID uuid.UUID) *models.Registration {
	return s.regs[key(webinarID, userID)]
}

func newTestTracker(store *fakeStore, now time.Time) *Tracker {
	tr := NewTracker(store, nil)
	tr.now = func() time.Time { return now }
	return tr
}

func TestRecordJoinCreatesRegistration(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := newTestTracker(store, now)
	webinarID, userID := uuid.New(), uuid.New()

	require.NoError(t, tr.RecordJoin(context.Background(), webinarID, userID))

	reg := store.get(webinarID, userID)
	require.NotNil(t, reg)
	assert.True(t, reg.Attended)
	require.NotNil(t, reg.AttendanceStart)
	assert.Equal(t, now, *reg.AttendanceStart)
	assert.Nil(t, reg.AttendanceEnd)
}

func TestRecordLeaveClosesInterval(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := newTestTracker(store, start)
	webinarID, userID := uuid.New(), uuid.New()

	require.NoError(t, tr.RecordJoin(context.Background(), webinarID, userID))
	tr.now = func() time.Time { return start.Add(42 * time.Minute) }
	require.NoError(t, tr.RecordLeave(context.Background(), webinarID, userID))

	reg := store.get(webinarID, userID)
	require.NotNil(t, reg.AttendanceEnd)
	require.NotNil(t, reg.DurationMinutes)
	assert.Equal(t, 42, *reg.DurationMinutes)
}

func TestRecordLeaveWithoutJoinIsNoop(t *testing.T) {
	store := newFakeStore()
	tr := newTestTracker(store, time.Now())
	webinarID, userID := uuid.New(), uuid.New()
	store.register(webinarID, userID)

	require.NoError(t, tr.RecordLeave(context.Background(), webinarID, userID))

	reg := store.get(webinarID, userID)
	assert.Nil(t, reg.AttendanceEnd)
	assert.Nil(t, reg.DurationMinutes)
}

func TestRejoinOverwritesInterval(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := newTestTracker(store, start)
	webinarID, userID := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, tr.RecordJoin(ctx, webinarID, userID))
	tr.now = func() time.Time { return start.Add(10 * time.Minute) }
	require.NoError(t, tr.RecordLeave(ctx, webinarID, userID))

	rejoin := start.Add(30 * time.Minute)
	tr.now = func() time.Time { return rejoin }
	require.NoError(t, tr.RecordJoin(ctx, webinarID, userID))

	reg := store.get(webinarID, userID)
	require.NotNil(t, reg.AttendanceStart)
	assert.Equal(t, rejoin, *reg.AttendanceStart)
	assert.Nil(t, reg.AttendanceEnd)
	assert.Nil(t, reg.DurationMinutes)
}

func TestCloseAllOpenIntervals(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := newTestTracker(store, base)
	webinarID, otherWebinar := uuid.New(), uuid.New()
	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, tr.RecordJoin(ctx, webinarID, userA))
	tr.now = func() time.Time { return base.Add(5 * time.Minute) }
	require.NoError(t, tr.RecordJoin(ctx, webinarID, userB))
	require.NoError(t, tr.RecordJoin(ctx, otherWebinar, userC))

	end := base.Add(20 * time.Minute)
	require.NoError(t, tr.CloseAllOpenIntervals(ctx, webinarID, end))

	regA := store.get(webinarID, userA)
	require.NotNil(t, regA.DurationMinutes)
	assert.Equal(t, 20, *regA.DurationMinutes)

	regB := store.get(webinarID, userB)
	require.NotNil(t, regB.DurationMinutes)
	assert.Equal(t, 15, *regB.DurationMinutes)

	// The other webinar's interval stays open.
	assert.True(t, store.get(otherWebinar, userC).HasOpenInterval())
}

func TestAggregate(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := newTestTracker(store, base)
	webinarID := uuid.New()
	attendedA, attendedB, noShow := uuid.New(), uuid.New(), uuid.New()
	ctx := context.Background()

	store.register(webinarID, noShow)
	require.NoError(t, tr.RecordJoin(ctx, webinarID, attendedA))
	require.NoError(t, tr.RecordJoin(ctx, webinarID, attendedB))
	tr.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, tr.RecordLeave(ctx, webinarID, attendedA))
	tr.now = func() time.Time { return base.Add(30 * time.Minute) }
	require.NoError(t, tr.RecordLeave(ctx, webinarID, attendedB))

	s, err := tr.Aggregate(ctx, webinarID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalRegistered)
	assert.Equal(t, 2, s.TotalAttended)
	assert.Equal(t, 1, s.TotalNoShow)
	assert.InDelta(t, 20.0, s.AvgDurationMinutes, 0.001)
}

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DurationMinutes(start, start))
	assert.Equal(t, 1, DurationMinutes(start, start.Add(50*time.Second)))
	assert.Equal(t, 0, DurationMinutes(start, start.Add(20*time.Second)))
	assert.Equal(t, 90, DurationMinutes(start, start.Add(90*time.Minute)))
	// Clock skew never yields a negative duration.
	assert.Equal(t, 0, DurationMinutes(start, start.Add(-5*time.Minute)))
}
