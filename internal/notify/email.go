package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
	Receiver string
}

// EmailNotifier sends plain-text alert mails through an SMTP relay.
// smtp.SendMail upgrades to STARTTLS whenever the server offers it.
type EmailNotifier struct {
	cfg      EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewEmailNotifier creates an email channel.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Receiver == "" {
		cfg.Receiver = cfg.Sender
	}
	return &EmailNotifier{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Name implements Notifier.
func (e *EmailNotifier) Name() string {
	return "email"
}

// Send implements Notifier. net/smtp has no context support, so ctx is only
// checked before dialing.
func (e *EmailNotifier) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.Sender, e.cfg.Password, e.cfg.Host)

	if err := e.sendMail(addr, auth, e.cfg.Sender, []string{e.cfg.Receiver}, e.message(subject, body)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}
	return nil
}

func (e *EmailNotifier) message(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.cfg.Sender + "\r\n")
	b.WriteString("To: " + e.cfg.Receiver + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
