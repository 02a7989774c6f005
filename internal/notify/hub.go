// Package notify fans notifications out to connected readers through redis
// pub/sub, so every API instance can deliver to every socket.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix    = "kgr:notifications:"
	broadcastChannel = channelPrefix + "all"
)

// Notification is the payload delivered to subscribers.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type Hub struct {
	client *redis.Client
	logger *zap.Logger
}

func NewHub(client *redis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{client: client, logger: logger.Named("notify")}
}

func UserChannel(userID string) string {
	return channelPrefix + userID
}

// Publish delivers n to the subscribers of its user.
func (h *Hub) Publish(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return errors.New("notification has no recipient")
	}
	return h.publish(ctx, UserChannel(n.UserID), n)
}

// Broadcast delivers n to every subscriber.
func (h *Hub) Broadcast(ctx context.Context, n Notification) error {
	n.UserID = ""
	return h.publish(ctx, broadcastChannel, n)
}

func (h *Hub) publish(ctx context.Context, channel string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := h.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stream relays the user's notifications and broadcasts to send until ctx is
// done or send fails. It returns nil when ctx ends.
func (h *Hub) Stream(ctx context.Context, userID string, send func(Notification) error) error {
	sub := h.client.Subscribe(ctx, UserChannel(userID), broadcastChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so nothing published after
	// Stream starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe notifications: %w", err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				h.logger.Warn("drop malformed notification", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if err := send(n); err != nil {
				return err
			}
		}
	}
}
