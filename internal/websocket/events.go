package websocket

import (
	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/storage/models"
)

// EventBroadcaster turns domain events into hub messages.
type EventBroadcaster struct {
	hub *Hub
	log logrus.FieldLogger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, log logrus.FieldLogger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, log: log}
}

// BroadcastSyncCompleted sends a sync.completed event.
func (b *EventBroadcaster) BroadcastSyncCompleted(result models.SyncResult) {
	b.broadcast(NewMessage(TypeSyncCompleted, SyncCompletedPayload{
		PropertyName:   result.PropertyName,
		BookingsA:      result.BookingsA,
		BookingsB:      result.BookingsB,
		FetchFailed:    result.FetchFailed,
		NewBookings:    result.NewBookings,
		Cancellations:  result.Cancellations,
		Conflicts:      result.Conflicts,
		MirrorInserted: result.MirrorInserted,
		MirrorDeleted:  result.MirrorDeleted,
		MirrorErrors:   result.MirrorErrors,
		AlertsSent:     result.AlertsSent,
		DurationMS:     result.Duration.Milliseconds(),
	}))
}

// BroadcastSyncFailed sends a sync.failed event.
func (b *EventBroadcaster) BroadcastSyncFailed(property string, state models.SyncState, err error) {
	b.broadcast(NewMessage(TypeSyncFailed, SyncFailedPayload{
		PropertyName: property,
		State:        state,
		Message:      err.Error(),
	}))
}

// BroadcastAlert sends an alert.raised event.
func (b *EventBroadcaster) BroadcastAlert(alert models.Alert) {
	b.broadcast(NewMessage(TypeAlertRaised, AlertPayload{
		PropertyName: alert.PropertyName,
		Kind:         alert.Kind,
		Source:       alert.Source,
		Subject:      alert.Subject,
		Body:         alert.Body,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.log.WithError(err).WithField("type", msg.Type).Error("encoding websocket message")
		return
	}

	b.hub.Broadcast(data)
}
