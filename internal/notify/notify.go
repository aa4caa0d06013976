// Package notify sends operator e-mail. Delivery is best effort: failures are
// logged by the caller, never propagated into a booking attempt.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	Log zerolog.Logger
}

// Send delivers one message. A missing recipient is a no-op, matching slots
// configured without a contact address.
func (m *Mailer) Send(ctx context.Context, subject, body, recipient string) error {
	if recipient == "" {
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)

	// net/smtp upgrades to STARTTLS when the server offers it.
	if err := smtp.SendMail(addr, auth, m.From, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.Log.Info().Str("to", recipient).Str("subject", subject).Msg("notification sent")
	return nil
}
