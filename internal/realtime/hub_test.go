package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(webinarID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		WebinarID: webinarID,
		UserID:    uuid.New(),
		send:      make(chan WSMessage, 16),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestRegisterUnregisterAudienceCount(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	a, b := newTestClient(webinarID), newTestClient(webinarID)

	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.AudienceCount(webinarID))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.AudienceCount(webinarID))
	hub.Unregister(b)
	assert.Equal(t, 0, hub.AudienceCount(webinarID))
}

func TestBroadcastReachesWholeRoom(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID, other := uuid.New(), uuid.New()
	a, b := newTestClient(webinarID), newTestClient(webinarID)
	c := newTestClient(other)
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	hub.Broadcast(webinarID, "status-changed", map[string]string{"status": "live"})

	for _, cl := range []*Client{a, b} {
		msgs := drain(cl)
		require.Len(t, msgs, 1)
		assert.Equal(t, "status-changed", msgs[0].Event)
	}
	assert.Empty(t, drain(c))
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	joiner, other := newTestClient(webinarID), newTestClient(webinarID)
	hub.Register(joiner)
	hub.Register(other)

	hub.BroadcastExcept(webinarID, joiner.ID, "user-joined", map[string]string{"name": "ada"})

	assert.Empty(t, drain(joiner))
	msgs := drain(other)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user-joined", msgs[0].Event)
}

func TestSendToTargetsSingleClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	target, bystander := newTestClient(webinarID), newTestClient(webinarID)
	hub.Register(target)
	hub.Register(bystander)

	hub.SendTo(webinarID, target.ID, "chat-history", []string{})

	msgs := drain(target)
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat-history", msgs[0].Event)
	assert.Empty(t, drain(bystander))
}

func TestSendToUnknownClientIsNoop(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	hub.SendTo(uuid.New(), "missing", "chat-history", nil)
}

func TestAudienceChangeHandler(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	var counts []int
	hub.SetAudienceChangeHandler(func(id uuid.UUID, count int) {
		assert.Equal(t, webinarID, id)
		counts = append(counts, count)
	})

	a, b := newTestClient(webinarID), newTestClient(webinarID)
	hub.Register(a)
	hub.Register(b)
	hub.Unregister(a)
	hub.Unregister(b)

	// The last unregister leaves an empty room; no callback for zero.
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestFullSendBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	c := newTestClient(webinarID)
	c.send = make(chan WSMessage, 1)
	hub.Register(c)

	hub.Broadcast(webinarID, "new-message", map[string]string{"body": "one"})
	hub.Broadcast(webinarID, "new-message", map[string]string{"body": "two"})

	msgs := drain(c)
	assert.Len(t, msgs, 1)
}
