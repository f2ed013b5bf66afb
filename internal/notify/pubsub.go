package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/syncwatch/backend/internal/storage/models"
)

// PubSubNotifier publishes every alert as a JSON message to a topic.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

// NewPubSubNotifier creates a Pub/Sub channel on an existing topic.
func NewPubSubNotifier(client *pubsub.Client, topicID string) *PubSubNotifier {
	return &PubSubNotifier{topic: client.Topic(topicID)}
}

// Name implements Notifier.
func (p *PubSubNotifier) Name() string {
	return "pubsub"
}

type alertMessage struct {
	Kind         models.AlertKind `json:"kind"`
	PropertyName string           `json:"property_name"`
	Source       models.Source    `json:"source,omitempty"`
	Subject      string           `json:"subject"`
	Body         string           `json:"body"`
	RaisedAt     time.Time        `json:"raised_at"`
}

// Send implements Notifier.
func (p *PubSubNotifier) Send(ctx context.Context, subject, body string) error {
	return p.publish(ctx, alertMessage{Subject: subject, Body: body, RaisedAt: time.Now().UTC()})
}

// NotifyAlert implements AlertNotifier.
func (p *PubSubNotifier) NotifyAlert(ctx context.Context, alert models.Alert) error {
	return p.publish(ctx, alertMessage{
		Kind:         alert.Kind,
		PropertyName: alert.PropertyName,
		Source:       alert.Source,
		Subject:      alert.Subject,
		Body:         alert.Body,
		RaisedAt:     time.Now().UTC(),
	})
}

func (p *PubSubNotifier) publish(ctx context.Context, msg alertMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding pubsub message: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": string(msg.Kind), "property": msg.PropertyName},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubNotifier) Stop() {
	p.topic.Stop()
}
