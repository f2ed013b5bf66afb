// Package notify delivers alerts to every configured channel.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/storage/models"
)

// Notifier is one best-effort delivery channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// AlertNotifier is implemented by channels that want the whole alert rather
// than its rendered text.
type AlertNotifier interface {
	Notifier
	NotifyAlert(ctx context.Context, alert models.Alert) error
}

// Dispatcher fans an alert out to every channel. A failing channel never
// prevents delivery to the others.
type Dispatcher struct {
	channels []Notifier
	alertLog storage.AlertLog
	log      logrus.FieldLogger
}

// NewDispatcher creates a dispatcher. alertLog may be nil.
func NewDispatcher(channels []Notifier, alertLog storage.AlertLog, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		alertLog: alertLog,
		log:      log,
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch delivers alert to every channel and records the outcome. The
// returned error only reports a failure to record the alert.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) error {
	log := d.log.WithFields(logrus.Fields{
		"property": alert.PropertyName,
		"kind":     alert.Kind,
	})
	log.Warnf("🚨 %s", alert.Subject)

	rec := &models.AlertRecord{
		Kind:         alert.Kind,
		PropertyName: alert.PropertyName,
		Source:       alert.Source,
		Subject:      alert.Subject,
		Body:         alert.Body,
		Deliveries:   make(map[string]string, len(d.channels)),
	}

	for _, ch := range d.channels {
		err := d.deliver(ctx, ch, alert)
		if err != nil {
			rec.Deliveries[ch.Name()] = err.Error()
			log.WithError(err).WithField("channel", ch.Name()).Warn("notification failed")
			continue
		}
		rec.Deliveries[ch.Name()] = models.DeliveryOK
		log.WithField("channel", ch.Name()).Debug("notification sent")
	}

	if d.alertLog == nil {
		return nil
	}
	if err := d.alertLog.Append(ctx, rec); err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch Notifier, alert models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s notifier: %v", ch.Name(), r)
		}
	}()

	if an, ok := ch.(AlertNotifier); ok {
		return an.NotifyAlert(ctx, alert)
	}
	return ch.Send(ctx, alert.Subject, alert.Body)
}
