package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/syncwatch/backend/internal/calendar"
	"github.com/syncwatch/backend/internal/config"
	"github.com/syncwatch/backend/internal/mirror"
	"github.com/syncwatch/backend/internal/notify"
	"github.com/syncwatch/backend/internal/reconcile"
	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/websocket"
)

// application holds the wired components and the resources to release on exit.
type application struct {
	store     storage.SnapshotStore
	alertLog  storage.AlertLog
	scheduler *calendar.Scheduler
	closers   []func()
}

// Close releases resources in reverse acquisition order.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, hub *websocket.Hub, log *logrus.Logger) (*application, error) {
	app := &application{}

	if err := openStore(cfg, app, log); err != nil {
		app.Close()
		return nil, err
	}

	var reconciler *mirror.Reconciler
	if cfg.Mirror.Enabled {
		strategy, err := mirror.ParseStrategy(cfg.Mirror.Strategy)
		if err != nil {
			app.Close()
			return nil, err
		}
		gcal, err := mirror.NewGoogleCalendar(ctx, cfg.Mirror.CredentialsFile)
		if err != nil {
			app.Close()
			return nil, err
		}
		reconciler = mirror.NewReconciler(gcal, strategy, cfg.Mirror.Tag, log.WithField("component", "mirror"))
		log.WithField("strategy", strategy).Info("google calendar mirroring enabled")
	}

	channels, err := buildNotifiers(ctx, cfg.Notifiers, hub, app, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(channels, app.alertLog, log.WithField("component", "notify"))
	log.WithField("channels", dispatcher.Channels()).Info("alert channels configured")

	names := calendar.SourceNames{
		KeyA:   cfg.Sources.A.Key,
		KeyB:   cfg.Sources.B.Key,
		LabelA: cfg.Sources.A.Label,
		LabelB: cfg.Sources.B.Label,
	}

	feeds := calendar.NewHTTPFeedSource(calendar.FeedOptions{
		Timeout:     cfg.Feed.Timeout,
		UserAgent:   cfg.Feed.UserAgent,
		HorizonDays: cfg.Feed.HorizonDays,
	}, log.WithField("component", "feed"))

	syncService := calendar.NewSyncService(
		feeds,
		app.store,
		calendar.NewArtifactWriter(cfg.OutputDir, names, cfg.Mirror.Tag),
		reconciler,
		dispatcher,
		calendar.SyncOptions{
			Policy: reconcile.Policy{
				Labels:     reconcile.Labels{A: names.LabelA, B: names.LabelB},
				FeedBroken: cfg.Alerts.FeedBrokenEnabled(),
			},
			SuppressOutageCancellations: cfg.Alerts.SuppressOutageCancellations,
		},
		log.WithField("component", "sync"),
	)

	schedule, err := calendar.ParseSchedule(cfg.Refresh)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.scheduler = calendar.NewScheduler(syncService, cfg.Properties, schedule, hub, log.WithField("component", "scheduler"))

	return app, nil
}

func openStore(cfg *config.Config, app *application, log logrus.FieldLogger) error {
	switch cfg.Snapshot.Driver {
	case config.DriverFile:
		app.store = storage.NewFileSnapshotStore(cfg.Snapshot.Path)
		app.alertLog = storage.NewMemoryAlertLog(storage.DefaultAlertRingSize)
	default:
		db, err := storage.NewDB(cfg.Snapshot.Path)
		if err != nil {
			return fmt.Errorf("opening snapshot database: %w", err)
		}
		app.closers = append(app.closers, func() { db.Close() })

		if err := storage.RunMigrations(db, log); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		app.store = storage.NewSnapshotRepository(db)
		app.alertLog = storage.NewAlertRepository(db)
	}

	log.WithFields(logrus.Fields{
		"driver": cfg.Snapshot.Driver,
		"path":   cfg.Snapshot.Path,
	}).Info("snapshot store ready")
	return nil
}

func buildNotifiers(ctx context.Context, cfg config.NotifiersConfig, hub *websocket.Hub, app *application, log logrus.FieldLogger) ([]notify.Notifier, error) {
	var channels []notify.Notifier

	if cfg.Telegram.Enabled() {
		channels = append(channels, notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}

	if cfg.Email.Enabled() {
		channels = append(channels, notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Sender:   cfg.Email.Sender,
			Password: cfg.Email.Password,
			Receiver: cfg.Email.Receiver,
		}))
	}

	if cfg.WebPush.Enabled() {
		subs := make([]webpush.Subscription, 0, len(cfg.WebPush.Subscriptions))
		for _, s := range cfg.WebPush.Subscriptions {
			subs = append(subs, webpush.Subscription{
				Endpoint: s.Endpoint,
				Keys:     webpush.Keys{P256dh: s.P256dh, Auth: s.Auth},
			})
		}
		channels = append(channels, notify.NewWebPushNotifier(subs, webpush.Options{
			Subscriber:      cfg.WebPush.Subject,
			VAPIDPublicKey:  cfg.WebPush.PublicKey,
			VAPIDPrivateKey: cfg.WebPush.PrivateKey,
			TTL:             cfg.WebPush.TTL,
		}))
	}

	if cfg.PubSub.Enabled() {
		var opts []option.ClientOption
		if cfg.PubSub.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
		}
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating pubsub client: %w", err)
		}
		publisher := notify.NewPubSubNotifier(client, cfg.PubSub.Topic)
		app.closers = append(app.closers, func() {
			publisher.Stop()
			client.Close()
		})
		channels = append(channels, publisher)
	}

	if hub != nil {
		channels = append(channels, notify.NewHubNotifier(websocket.NewEventBroadcaster(hub, log)))
	}

	return channels, nil
}
