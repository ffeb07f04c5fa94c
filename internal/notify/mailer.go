// Package notify sends e-mail through SMTP.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// ErrDisabled is returned when no SMTP host is configured.
var ErrDisabled = errors.New("notify: smtp is not configured")

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Insecure skips TLS verification, for local catchers like Mailpit.
	Insecure bool
}

// Message is one e-mail.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer struct {
	from string
	send func(msgs ...*gomail.Message) error
}

// NewMailer dials the configured server for every send. An empty host disables it.
func NewMailer(cfg Config) *Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return &Mailer{from: cfg.From}
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Insecure {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Mailer{from: cfg.From, send: dialer.DialAndSend}
}

// NewMailerWithSender delivers through an existing gomail sender.
func NewMailerWithSender(from string, sender gomail.Sender) *Mailer {
	return &Mailer{from: from, send: func(msgs ...*gomail.Message) error {
		return gomail.Send(sender, msgs...)
	}}
}

// Enabled reports whether messages can be delivered.
func (m *Mailer) Enabled() bool { return m != nil && m.send != nil }

// Send delivers msg. gomail has no context support, so ctx is only checked before dialing.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	to := recipients(msg.To)
	if len(to) == 0 {
		return errors.New("notify: message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", to...)
	gm.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		gm.SetBody("text/html", msg.HTML)
	default:
		gm.SetBody("text/plain", msg.Text)
	}
	if err := m.send(gm); err != nil {
		return fmt.Errorf("notify: send %q: %w", msg.Subject, err)
	}
	return nil
}

func recipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, addr := range in {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// SplitAddresses parses a comma separated recipient list.
func SplitAddresses(raw string) []string {
	return recipients(strings.Split(raw, ","))
}
