package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

const NotificationsChannel = "arena_notifications"

// Notifier publishes committed booking and wallet facts for the notification service.
type Notifier struct {
	client  Client
	channel string
}

func NewNotifier(client Client, channel string) *Notifier {
	if channel == "" {
		channel = NotificationsChannel
	}
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) Notify(ctx context.Context, msg models.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
