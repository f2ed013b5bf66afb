package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// PushSender sends one web push message.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

type libPushSender struct{}

func (libPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushNotifier pushes alerts to every configured browser subscription.
type WebPushNotifier struct {
	subscriptions []webpush.Subscription
	options       webpush.Options
	sender        PushSender
}

// NewWebPushNotifier creates a web push channel.
func NewWebPushNotifier(subs []webpush.Subscription, opts webpush.Options) *WebPushNotifier {
	return &WebPushNotifier{
		subscriptions: subs,
		options:       opts,
		sender:        libPushSender{},
	}
}

// Name implements Notifier.
func (w *WebPushNotifier) Name() string {
	return "webpush"
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send implements Notifier. It fails only when no subscription accepted the
// message.
func (w *WebPushNotifier) Send(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(pushPayload{Title: subject, Body: body})
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	var failures []string
	for i := range w.subscriptions {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := &w.subscriptions[i]
		resp, err := w.sender.Send(payload, sub, &w.options)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			failures = append(failures, fmt.Sprintf("status %d", resp.StatusCode))
		}
	}

	if len(failures) > 0 && len(failures) == len(w.subscriptions) {
		return fmt.Errorf("all %d push deliveries failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
