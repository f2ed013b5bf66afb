// Package config loads the SyncWatch YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syncwatch/backend/internal/calendar"
	"github.com/syncwatch/backend/internal/storage/models"
)

const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"

	defaultListen     = ":8080"
	defaultOutputDir  = "./ical_output"
	defaultRefresh    = "15m"
	defaultSQLitePath = "./data/syncwatch.db"
	defaultFilePath   = "./syncwatch_state.json"
	defaultSMTPHost   = "smtp.gmail.com"
	defaultSMTPPort   = 587
)

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// SourceConfig names one booking platform.
type SourceConfig struct {
	// Key is used in artifact file names.
	Key string `yaml:"key"`
	// Label is used in alerts and logs.
	Label string `yaml:"label"`
}

// SourcesConfig names source A and source B.
type SourcesConfig struct {
	A SourceConfig `yaml:"a"`
	B SourceConfig `yaml:"b"`
}

// FeedConfig tunes feed downloads.
type FeedConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	HorizonDays int           `yaml:"horizon_days"`
}

// SnapshotConfig selects the snapshot store.
type SnapshotConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// MirrorConfig enables Google Calendar mirroring.
type MirrorConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Strategy        string `yaml:"strategy"`
	Tag             string `yaml:"tag"`
	CredentialsFile string `yaml:"credentials_file"`
}

// AlertsConfig tunes the alert policy.
type AlertsConfig struct {
	// FeedBroken defaults to true when unset.
	FeedBroken                  *bool `yaml:"feed_broken"`
	SuppressOutageCancellations bool  `yaml:"suppress_outage_cancellations"`
}

// FeedBrokenEnabled reports whether feed-broken alerts fire.
func (a AlertsConfig) FeedBrokenEnabled() bool {
	return a.FeedBroken == nil || *a.FeedBroken
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Enabled reports whether the channel is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Sender   string `yaml:"sender"`
	Password string `yaml:"password"`
	Receiver string `yaml:"receiver"`
}

// Enabled reports whether the channel is configured.
func (e EmailConfig) Enabled() bool {
	return e.Sender != "" && e.Password != ""
}

// PushSubscription is one browser subscription.
type PushSubscription struct {
	Endpoint string `yaml:"endpoint"`
	P256dh   string `yaml:"p256dh"`
	Auth     string `yaml:"auth"`
}

// WebPushConfig configures the web push channel.
type WebPushConfig struct {
	PublicKey     string             `yaml:"public_key"`
	PrivateKey    string             `yaml:"private_key"`
	Subject       string             `yaml:"subject"`
	TTL           int                `yaml:"ttl"`
	Subscriptions []PushSubscription `yaml:"subscriptions"`
}

// Enabled reports whether the channel is configured.
func (w WebPushConfig) Enabled() bool {
	return w.PrivateKey != "" && len(w.Subscriptions) > 0
}

// PubSubConfig configures the Pub/Sub channel.
type PubSubConfig struct {
	ProjectID       string `yaml:"project_id"`
	Topic           string `yaml:"topic"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Enabled reports whether the channel is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// NotifiersConfig holds every alert channel.
type NotifiersConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
	WebPush  WebPushConfig  `yaml:"webpush"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen     string            `yaml:"listen"`
	OutputDir  string            `yaml:"output_dir"`
	Refresh    string            `yaml:"refresh"`
	Log        LogConfig         `yaml:"log"`
	Sources    SourcesConfig     `yaml:"sources"`
	Feed       FeedConfig        `yaml:"feed"`
	Snapshot   SnapshotConfig    `yaml:"snapshot"`
	Mirror     MirrorConfig      `yaml:"mirror"`
	Alerts     AlertsConfig      `yaml:"alerts"`
	Notifiers  NotifiersConfig   `yaml:"notifiers"`
	Properties []models.Property `yaml:"properties"`
}

// Load reads .env (if present) and the YAML file at path, applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and the port from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Notifiers.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Notifiers.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&c.Notifiers.Email.Sender, "EMAIL_SENDER")
	set(&c.Notifiers.Email.Password, "EMAIL_PASSWORD")
	set(&c.Notifiers.Email.Receiver, "EMAIL_RECEIVER")
	set(&c.Mirror.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Listen = ":" + port
	}
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Sources.A.Key == "" {
		c.Sources.A.Key = "airbnb"
	}
	if c.Sources.A.Label == "" {
		c.Sources.A.Label = "Airbnb"
	}
	if c.Sources.B.Key == "" {
		c.Sources.B.Key = "booking"
	}
	if c.Sources.B.Label == "" {
		c.Sources.B.Label = "Booking.com"
	}

	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = 15 * time.Second
	}
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = "SyncWatch/1.0"
	}
	if c.Feed.HorizonDays <= 0 {
		c.Feed.HorizonDays = 365
	}

	c.Snapshot.Driver = strings.ToLower(strings.TrimSpace(c.Snapshot.Driver))
	if c.Snapshot.Driver == "" {
		c.Snapshot.Driver = DriverSQLite
	}
	if c.Snapshot.Path == "" {
		switch c.Snapshot.Driver {
		case DriverFile:
			c.Snapshot.Path = defaultFilePath
		default:
			c.Snapshot.Path = defaultSQLitePath
		}
	}

	if c.Mirror.Strategy == "" {
		c.Mirror.Strategy = "incremental"
	}
	if c.Mirror.Tag == "" {
		c.Mirror.Tag = "[SyncWatch]"
	}

	if c.Notifiers.Email.Host == "" {
		c.Notifiers.Email.Host = defaultSMTPHost
	}
	if c.Notifiers.Email.Port == 0 {
		c.Notifiers.Email.Port = defaultSMTPPort
	}
	if c.Notifiers.WebPush.TTL <= 0 {
		c.Notifiers.WebPush.TTL = 3600
	}

	for i := range c.Properties {
		c.Properties[i].Name = strings.TrimSpace(c.Properties[i].Name)
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Properties) == 0 {
		problems = append(problems, "no properties configured")
	}
	seen := make(map[string]bool, len(c.Properties))
	slugs := make(map[string]string, len(c.Properties))
	for i, p := range c.Properties {
		switch {
		case p.Name == "":
			problems = append(problems, "property "+strconv.Itoa(i)+" has no name")
		case seen[p.Name]:
			problems = append(problems, fmt.Sprintf("duplicate property name %q", p.Name))
		default:
			slug := calendar.Slug(p.Name)
			if other, ok := slugs[slug]; ok {
				problems = append(problems, fmt.Sprintf("properties %q and %q share artifact name %q", other, p.Name, slug))
			}
			slugs[slug] = p.Name
		}
		seen[p.Name] = true
		if p.FeedA == "" {
			problems = append(problems, fmt.Sprintf("property %q has no feed_a", p.Name))
		}
		if p.FeedB == "" {
			problems = append(problems, fmt.Sprintf("property %q has no feed_b", p.Name))
		}
	}

	switch c.Snapshot.Driver {
	case DriverSQLite, DriverFile:
	default:
		problems = append(problems, fmt.Sprintf("unknown snapshot driver %q", c.Snapshot.Driver))
	}

	switch c.Mirror.Strategy {
	case "incremental", "replace":
	default:
		problems = append(problems, fmt.Sprintf("unknown mirror strategy %q", c.Mirror.Strategy))
	}

	if c.Sources.A.Key == c.Sources.B.Key {
		problems = append(problems, "source keys must differ")
	}

	if _, err := calendar.ParseSchedule(c.Refresh); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
