package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncwatch/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	TypeSyncCompleted MessageType = "sync.completed"
	TypeSyncFailed    MessageType = "sync.failed"
	TypeAlertRaised   MessageType = "alert.raised"
)

// Message represents a WebSocket message envelope.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with a fresh ID and the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncCompletedPayload is the payload for sync.completed events.
type SyncCompletedPayload struct {
	PropertyName   string          `json:"property_name"`
	BookingsA      int             `json:"bookings_a"`
	BookingsB      int             `json:"bookings_b"`
	FetchFailed    []models.Source `json:"fetch_failed,omitempty"`
	NewBookings    int             `json:"new_bookings"`
	Cancellations  int             `json:"cancellations"`
	Conflicts      int             `json:"conflicts"`
	MirrorInserted int             `json:"mirror_inserted"`
	MirrorDeleted  int             `json:"mirror_deleted"`
	MirrorErrors   int             `json:"mirror_errors"`
	AlertsSent     int             `json:"alerts_sent"`
	DurationMS     int64           `json:"duration_ms"`
}

// SyncFailedPayload is the payload for sync.failed events.
type SyncFailedPayload struct {
	PropertyName string           `json:"property_name"`
	State        models.SyncState `json:"state"`
	Message      string           `json:"message"`
}

// AlertPayload is the payload for alert.raised events.
type AlertPayload struct {
	PropertyName string           `json:"property_name"`
	Kind         models.AlertKind `json:"kind"`
	Source       models.Source    `json:"source,omitempty"`
	Subject      string           `json:"subject"`
	Body         string           `json:"body"`
}
