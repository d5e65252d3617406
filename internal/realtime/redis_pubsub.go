package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "webinar:"
	publishTimeout = 5 * time.Second
)

// roomEvent is the message published to Redis for cross-instance fan-out.
// Exclude names the client connection the event should skip (the sender);
// every instance honors it so the sender never sees its own join/leave echo.
type roomEvent struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Exclude string          `json:"exclude,omitempty"`
	At      int64           `json:"at"`
}

// RedisPubSub bridges room events across server instances via Redis pub/sub,
// one channel per webinar.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates the Redis bridge for room events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// Publish sends an event to the webinar's channel. Every subscribed instance
// (including this one) delivers it to its local clients exactly once.
func (r *RedisPubSub) Publish(webinarID uuid.UUID, event string, payload []byte, exclude string) error {
	body, err := json.Marshal(roomEvent{
		Event:   event,
		Data:    payload,
		Exclude: exclude,
		At:      time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+webinarID.String(), body).Err()
}

// Subscribe listens on the webinar's channel and calls handler for each event.
// The returned cancel stops the subscription.
func (r *RedisPubSub) Subscribe(webinarID uuid.UUID, handler func(event string, payload []byte, exclude string)) (cancel func(), err error) {
	channel := channelPrefix + webinarID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev roomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("malformed room event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(ev.Event, ev.Data, ev.Exclude)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
