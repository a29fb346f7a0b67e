package common

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers outgoing email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Outbox keeps messages in memory instead of delivering them.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

// Send implements Mailer.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	o.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// LogMailer writes outgoing mail to the log. The worker uses it when no mail
// provider is configured.
type LogMailer struct {
	Logger zerolog.Logger
}

// Send implements Mailer.
func (l LogMailer) Send(_ context.Context, msg Message) error {
	l.Logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.Body)).
		Msg("email_outbound")
	return nil
}
