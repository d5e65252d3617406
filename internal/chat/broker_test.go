package chat

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

type fakeMessageStore struct {
	messages map[uuid.UUID]*models.ChatMessage
	order    []uuid.UUID
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[uuid.UUID]*models.ChatMessage)}
}

func (s *fakeMessageStore) Insert(_ context.Context, m *models.ChatMessage) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	cp := *m
	s.messages[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return nil
}

func (s *fakeMessageStore) History(_ context.Context, webinarID uuid.UUID) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, id := range s.order {
		m := s.messages[id]
		if m.WebinarID == webinarID && !m.Moderated {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) GetByID(_ context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMessageStore) SetModerated(_ context.Context, id uuid.UUID) error {
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.Moderated = true
	return nil
}

func (s *fakeMessageStore) SetAnswered(_ context.Context, id uuid.UUID) error {
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.Answered = true
	return nil
}

type sentEvent struct {
	event    string
	clientID string
	exclude  string
}

type fakeRegistry struct {
	events []sentEvent
}

func (r *fakeRegistry) Broadcast(_ uuid.UUID, event string, _ interface{}) {
	r.events = append(r.events, sentEvent{event: event})
}

func (r *fakeRegistry) BroadcastExcept(_ uuid.UUID, clientID string, event string, _ interface{}) {
	r.events = append(r.events, sentEvent{event: event, exclude: clientID})
}

func (r *fakeRegistry) SendTo(_ uuid.UUID, clientID string, event string, _ interface{}) {
	r.events = append(r.events, sentEvent{event: event, clientID: clientID})
}

func (r *fakeRegistry) names() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

type fakePresence struct {
	joins, leaves int
}

func (p *fakePresence) RecordJoin(_ context.Context, _, _ uuid.UUID) error {
	p.joins++
	return nil
}

func (p *fakePresence) RecordLeave(_ context.Context, _, _ uuid.UUID) error {
	p.leaves++
	return nil
}

type fakeStatRecorder struct {
	metrics []string
}

func (f *fakeStatRecorder) Record(_ context.Context, _ uuid.UUID, metric string) {
	f.metrics = append(f.metrics, metric)
}

type brokerFixture struct {
	store    *fakeMessageStore
	registry *fakeRegistry
	presence *fakePresence
	stats    *fakeStatRecorder
	broker   *Broker
}

func newBrokerFixture() *brokerFixture {
	f := &brokerFixture{
		store:    newFakeMessageStore(),
		registry: &fakeRegistry{},
		presence: &fakePresence{},
		stats:    &fakeStatRecorder{},
	}
	f.broker = NewBroker(f.store, f.registry, f.presence, f.stats, nil)
	return f
}

func participant(name string) Member {
	return Member{ClientID: uuid.New().String(), UserID: uuid.New(), Name: name, Role: models.RoleParticipant}
}

func moderator(name string) Member {
	return Member{ClientID: uuid.New().String(), UserID: uuid.New(), Name: name, Role: models.RoleSpeaker}
}

func TestSendMessagePersistsAndBroadcasts(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	author := participant("ada")

	m, err := f.broker.SendMessage(context.Background(), webinarID, author, "  hello  ", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Body)
	assert.Equal(t, author.UserID, m.UserID)
	assert.Equal(t, "ada", m.AuthorName)
	assert.Contains(t, f.registry.names(), "new-message")
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	f := newBrokerFixture()

	_, err := f.broker.SendMessage(context.Background(), uuid.New(), participant("ada"), "   ", false)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Empty(t, f.registry.events)
	assert.Empty(t, f.store.order)
}

func TestJoinRoomReplaysHistoryAndAnnounces(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	_, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "first", false)
	require.NoError(t, err)
	f.registry.events = nil

	joiner := participant("grace")
	f.broker.JoinRoom(ctx, webinarID, joiner)

	require.Len(t, f.registry.events, 2)
	assert.Equal(t, "chat-history", f.registry.events[0].event)
	assert.Equal(t, joiner.ClientID, f.registry.events[0].clientID)
	assert.Equal(t, "user-joined", f.registry.events[1].event)
	assert.Equal(t, joiner.ClientID, f.registry.events[1].exclude)
	assert.Equal(t, 1, f.presence.joins)
	assert.Contains(t, f.stats.metrics, models.MetricUserJoined)
}

func TestHistoryExcludesModerated(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	kept, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "kept", false)
	require.NoError(t, err)
	removed, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "removed", false)
	require.NoError(t, err)

	require.NoError(t, f.broker.Moderate(ctx, webinarID, moderator("host"), removed.ID, "delete"))

	history, err := f.store.History(ctx, webinarID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, kept.ID, history[0].ID)
}

func TestLeaveRoomExplicitClosesPresence(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	member := participant("ada")

	f.broker.LeaveRoom(context.Background(), webinarID, member, true)
	assert.Equal(t, 1, f.presence.leaves)
	assert.Contains(t, f.registry.names(), "user-left")
}

func TestLeaveRoomDisconnectKeepsIntervalOpen(t *testing.T) {
	f := newBrokerFixture()

	f.broker.LeaveRoom(context.Background(), uuid.New(), participant("ada"), false)
	assert.Equal(t, 0, f.presence.leaves)
	assert.Contains(t, f.registry.names(), "user-left")
}

func TestModerateRequiresModeratorRole(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	m, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "hi", false)
	require.NoError(t, err)

	err = f.broker.Moderate(ctx, webinarID, participant("eve"), m.ID, "delete")
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.False(t, f.store.messages[m.ID].Moderated)
}

func TestModerateDelete(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	m, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "spam", false)
	require.NoError(t, err)

	require.NoError(t, f.broker.Moderate(ctx, webinarID, moderator("host"), m.ID, "delete"))
	assert.True(t, f.store.messages[m.ID].Moderated)
	assert.Contains(t, f.registry.names(), "message-deleted")
}

func TestModerateAnswer(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	m, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "when ship?", true)
	require.NoError(t, err)

	require.NoError(t, f.broker.Moderate(ctx, webinarID, moderator("host"), m.ID, "answer"))
	assert.True(t, f.store.messages[m.ID].Answered)
	assert.Contains(t, f.registry.names(), "question-answered")
}

func TestModerateWrongWebinar(t *testing.T) {
	f := newBrokerFixture()
	ctx := context.Background()
	m, err := f.broker.SendMessage(ctx, uuid.New(), participant("ada"), "hi", false)
	require.NoError(t, err)

	err = f.broker.Moderate(ctx, uuid.New(), moderator("host"), m.ID, "delete")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestModerateUnknownAction(t *testing.T) {
	f := newBrokerFixture()
	webinarID := uuid.New()
	ctx := context.Background()
	m, err := f.broker.SendMessage(ctx, webinarID, participant("ada"), "hi", false)
	require.NoError(t, err)

	err = f.broker.Moderate(ctx, webinarID, moderator("host"), m.ID, "shadowban")
	assert.True(t, apperr.Is(err, apperr.Validation))
}
