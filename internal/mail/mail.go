// Package mail delivers transactional email through Mailgun.
package mail

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// Sender sends a plain-text message. The auth service depends on this
// interface; tests substitute an in-memory fake.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Mailgun is the production Sender.
type Mailgun struct {
	mg   *mailgun.MailgunImpl
	from string
}

// NewMailgun creates a Mailgun sender for the given domain.
func NewMailgun(domain, apiKey, from string) *Mailgun {
	return &Mailgun{
		mg:   mailgun.NewMailgun(domain, apiKey),
		from: from,
	}
}

// Send delivers a single plain-text message.
func (m *Mailgun) Send(ctx context.Context, to, subject, body string) error {
	msg := m.mg.NewMessage(m.from, subject, body, to)
	if _, _, err := m.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("mail: sending to %s: %w", to, err)
	}
	return nil
}
