// Package mail sends transactional email over an SMTP relay.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer delivers a message to a recipient. The service layer depends on
// this interface so tests and mail-less deployments can substitute NoopMailer.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// SMTPMailer sends mail through an authenticated SMTP relay.
type SMTPMailer struct {
	host string
	port int
	user string
	pass string
	from string
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from}
}

// Send delivers a single HTML message.
func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)

	var b strings.Builder
	b.WriteString("From: " + m.from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("mail: sending to %q: %w", to, err)
	}

	return nil
}

// NoopMailer drops mail and logs that it did. Used when no relay is
// configured so signup still works in development.
type NoopMailer struct {
	Logger *slog.Logger
}

var _ Mailer = (*NoopMailer)(nil)

func (m *NoopMailer) Send(to, subject, _ string) error {
	if m.Logger != nil {
		m.Logger.Info("mail delivery disabled, dropping message",
			slog.String("to", to),
			slog.String("subject", subject),
		)
	}
	return nil
}
