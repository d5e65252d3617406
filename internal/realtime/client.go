package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/chat"
	"github.com/lumen-webinar/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserLookup resolves a user's identity for room membership.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// WebinarLookup verifies the webinar exists before the upgrade.
type WebinarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// TokenValidator checks the connection token and returns the caller identity.
type TokenValidator func(token string) (userID uuid.UUID, role string, err error)

// Client represents a single WebSocket connection in a webinar room.
type Client struct {
	ID        string
	WebinarID uuid.UUID
	UserID    uuid.UUID
	Name      string
	Role      models.Role
	hub       *Hub
	broker    *chat.Broker
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger

	// leftExplicitly is set by the leave-session event so the disconnect
	// cleanup knows whether to close the presence interval.
	leftExplicitly bool
}

func (c *Client) member() chat.Member {
	return chat.Member{ClientID: c.ID, UserID: c.UserID, Name: c.Name, Role: c.Role}
}

func (c *Client) trySend(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		// buffer full, skip
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The client
// authenticates with ?webinar_id=...&token=... since browsers cannot set
// headers on WebSocket connections.
func ServeWs(hub *Hub, broker *chat.Broker, webinars WebinarLookup, users UserLookup,
	validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		webinarIDStr := c.Query("webinar_id")
		token := c.Query("token")
		if webinarIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "webinar_id and token required"})
			return
		}
		webinarID, err := uuid.Parse(webinarIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webinar_id"})
			return
		}
		userID, role, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := c.Request.Context()
		if _, err := webinars.GetByID(ctx, webinarID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "webinar not found"})
			return
		}
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			WebinarID: webinarID,
			UserID:    userID,
			Name:      user.Name,
			Role:      models.Role(role),
			hub:       hub,
			broker:    broker,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		broker.JoinRoom(context.Background(), webinarID, client.member())
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.broker.LeaveRoom(context.Background(), c.WebinarID, c.member(), c.leftExplicitly)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "send-message":
			var payload struct {
				Body       string `json:"body"`
				IsQuestion bool   `json:"is_question"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.sendError("malformed message")
				continue
			}
			if _, err := c.broker.SendMessage(context.Background(), c.WebinarID, c.member(), payload.Body, payload.IsQuestion); err != nil {
				c.sendError(err.Error())
			}
		case "moderate-message":
			var payload struct {
				MessageID uuid.UUID `json:"message_id"`
				Action    string    `json:"action"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.sendError("malformed moderation request")
				continue
			}
			if err := c.broker.Moderate(context.Background(), c.WebinarID, c.member(), payload.MessageID, payload.Action); err != nil {
				c.sendError(err.Error())
			}
		case "leave-session":
			c.leftExplicitly = true
			return
		default:
			// ignore
		}
	}
}

func (c *Client) sendError(msg string) {
	c.hub.SendTo(c.WebinarID, c.ID, "error", map[string]string{"error": msg})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
