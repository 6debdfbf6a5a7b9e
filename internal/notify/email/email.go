// Package email sends match notifications over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// SMTP defaults.
const (
	DefaultHost = "smtp.gmail.com"
	DefaultPort = 587
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// Sender delivers prepared messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Notifier emails the list of matches.
type Notifier struct {
	from   string
	to     []string
	sender Sender
}

// New builds a Notifier backed by a go-mail client with mandatory STARTTLS.
func New(cfg Config) (*Notifier, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return NewWithSender(cfg.From, cfg.To, client)
}

// NewWithSender builds a Notifier with a custom Sender.
func NewWithSender(from string, to []string, sender Sender) (*Notifier, error) {
	if from == "" {
		return nil, errors.New("sender address is required")
	}
	if len(to) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	return &Notifier{from: from, to: to, sender: sender}, nil
}

// Notify sends one email listing every match.
func (n *Notifier) Notify(ctx context.Context, notification gazette.Notification) error {
	msg, err := n.Message(notification)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Message builds the email for a notification.
func (n *Notifier) Message(notification gazette.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(n.to...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(Subject(notification.Date))
	msg.SetBodyString(mail.TypeTextPlain, Body(notification.Matches))
	return msg, nil
}

// Subject returns the subject line for day.
func Subject(day time.Time) string {
	return "DOU Matches Found - " + day.Format(gazette.DateLayout)
}

// Body renders the plain-text body.
func Body(matches []gazette.Match) string {
	var b strings.Builder
	b.WriteString("The following matches were found in today's DOU:\n\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "File Number: %s\n", m.RawNumber)
		fmt.Fprintf(&b, "Section: %s\n", m.Section)
		fmt.Fprintf(&b, "Page: %s\n", m.Page)
		fmt.Fprintf(&b, "URL: %s\n\n", m.URL)
	}
	return b.String()
}
