package models

import "time"

// AlertKind classifies a human-facing notification.
type AlertKind string

const (
	AlertNewBooking    AlertKind = "new_booking"
	AlertCancellation  AlertKind = "cancellation"
	AlertDoubleBooking AlertKind = "double_booking"
	AlertFeedBroken    AlertKind = "feed_broken"
)

// Alert is one notification decided by the alert policy.
type Alert struct {
	Kind         AlertKind `json:"kind"`
	PropertyName string    `json:"property_name"`
	Source       Source    `json:"source,omitempty"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
}

// AlertRecord is an alert as written to the alert log, with per-channel outcome.
type AlertRecord struct {
	ID           string            `json:"id"`
	Kind         AlertKind         `json:"kind"`
	PropertyName string            `json:"property_name"`
	Source       Source            `json:"source,omitempty"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Deliveries   map[string]string `json:"deliveries"`
	CreatedAt    time.Time         `json:"created_at"`
}

// DeliveryOK marks a channel delivery that succeeded in AlertRecord.Deliveries.
const DeliveryOK = "ok"
