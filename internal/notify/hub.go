package notify

import (
	"context"

	"github.com/syncwatch/backend/internal/storage/models"
	"github.com/syncwatch/backend/internal/websocket"
)

// HubNotifier streams alerts to connected websocket clients.
type HubNotifier struct {
	broadcaster *websocket.EventBroadcaster
}

// NewHubNotifier creates a websocket channel.
func NewHubNotifier(broadcaster *websocket.EventBroadcaster) *HubNotifier {
	return &HubNotifier{broadcaster: broadcaster}
}

// Name implements Notifier.
func (h *HubNotifier) Name() string {
	return "websocket"
}

// Send implements Notifier.
func (h *HubNotifier) Send(ctx context.Context, subject, body string) error {
	return h.NotifyAlert(ctx, models.Alert{Subject: subject, Body: body})
}

// NotifyAlert implements AlertNotifier.
func (h *HubNotifier) NotifyAlert(_ context.Context, alert models.Alert) error {
	h.broadcaster.BroadcastAlert(alert)
	return nil
}
