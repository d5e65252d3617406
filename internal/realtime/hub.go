package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are the heartbeat settings in seconds.
	PingInterval = 30
	PongWait     = 60
)

// AudienceChangeHandler is called whenever the connection count of a webinar
// room changes, e.g. to track peak viewers.
type AudienceChangeHandler func(webinarID uuid.UUID, count int)

// Publisher publishes a room event to Redis for cross-instance fan-out.
type Publisher interface {
	Publish(webinarID uuid.UUID, event string, payload []byte, exclude string) error
}

// Subscriber subscribes to a webinar's channel and invokes handler per event.
type Subscriber interface {
	Subscribe(webinarID uuid.UUID, handler func(event string, payload []byte, exclude string)) (cancel func(), err error)
}

// Hub maintains webinar_id -> set of connections. Broadcasts go through Redis
// only; the subscription callback delivers locally, so every instance
// (including the publishing one) delivers each event exactly once.
type Hub struct {
	rooms      map[uuid.UUID]map[string]*Client
	subs       map[uuid.UUID]func()
	mu         sync.RWMutex
	logger     *zap.Logger
	pub        Publisher
	sub        Subscriber
	onAudience AudienceChangeHandler
}

// NewHub creates the room hub. pub and sub may be nil for single-instance
// deployments; broadcasts then stay local.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// SetAudienceChangeHandler sets the audience count callback.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// Register adds a client to its webinar room, starting the Redis subscription
// when it is the room's first local client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.WebinarID] == nil {
		h.rooms[c.WebinarID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.Subscribe(c.WebinarID, func(event string, payload []byte, exclude string) {
				h.deliverLocal(c.WebinarID, event, payload, exclude)
			})
			if err != nil {
				h.logger.Error("room subscription failed",
					zap.String("webinar_id", c.WebinarID.String()), zap.Error(err))
			} else {
				h.subs[c.WebinarID] = cancel
			}
		}
	}
	h.rooms[c.WebinarID][c.ID] = c
	count := len(h.rooms[c.WebinarID])
	onAudience := h.onAudience
	h.mu.Unlock()

	if onAudience != nil {
		onAudience(c.WebinarID, count)
	}
	h.logger.Debug("client joined room",
		zap.String("client_id", c.ID), zap.String("webinar_id", c.WebinarID.String()))
}

// Unregister removes a client, cancelling the Redis subscription when the
// room's last local client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if room, ok := h.rooms[c.WebinarID]; ok {
		delete(room, c.ID)
		count = len(room)
		if count == 0 {
			delete(h.rooms, c.WebinarID)
			if cancel, ok := h.subs[c.WebinarID]; ok {
				cancel()
				delete(h.subs, c.WebinarID)
			}
		}
	}
	onAudience := h.onAudience
	h.mu.Unlock()

	if onAudience != nil && count > 0 {
		onAudience(c.WebinarID, count)
	}
	h.logger.Debug("client left room",
		zap.String("client_id", c.ID), zap.String("webinar_id", c.WebinarID.String()))
}

// AudienceCount returns the number of local connections in a room.
func (h *Hub) AudienceCount(webinarID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[webinarID])
}

// Broadcast sends an event to every connection in the room, on all instances.
func (h *Hub) Broadcast(webinarID uuid.UUID, event string, payload interface{}) {
	h.publish(webinarID, event, payload, "")
}

// BroadcastExcept sends an event to every room connection except clientID.
func (h *Hub) BroadcastExcept(webinarID uuid.UUID, clientID string, event string, payload interface{}) {
	h.publish(webinarID, event, payload, clientID)
}

func (h *Hub) publish(webinarID uuid.UUID, event string, payload interface{}, exclude string) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("unmarshalable room event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub != nil {
		err := h.pub.Publish(webinarID, event, data, exclude)
		if err == nil {
			return
		}
		h.logger.Warn("room publish failed, delivering locally",
			zap.String("event", event), zap.Error(err))
	}
	h.deliverLocal(webinarID, event, data, exclude)
}

// SendTo sends an event to a single connection on this instance. Used for
// history replay and per-connection errors, which never cross instances.
func (h *Hub) SendTo(webinarID uuid.UUID, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	c, ok := h.rooms[webinarID][clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.trySend(msg)
}

func (h *Hub) deliverLocal(webinarID uuid.UUID, event string, data []byte, exclude string) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	room := h.rooms[webinarID]
	clients := make([]*Client, 0, len(room))
	for id, c := range room {
		if id == exclude {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(msg)
	}
}
