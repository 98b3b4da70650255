package mail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"school-library/internal/config"

	"gopkg.in/gomail.v2"
)

// ErrDisabled is returned when no SMTP host is configured
var ErrDisabled = errors.New("mail delivery is disabled")

// Message is a plain-text email
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	Body    string
}

// SMTPMailer sends messages through an SMTP relay
type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	enabled bool
}

// NewSMTPMailer creates a mailer from the mail configuration.
// A mailer built from an empty host refuses to send.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	m := &SMTPMailer{
		from:    cfg.From,
		enabled: cfg.Host != "",
	}
	if m.enabled {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		// implicit TLS (port 465); otherwise STARTTLS is negotiated when offered
		m.dialer.SSL = cfg.UseTLS
	}
	return m
}

// Enabled reports whether the mailer can deliver
func (m *SMTPMailer) Enabled() bool {
	return m.enabled
}

// Send delivers a message
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if !m.enabled {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	log.Printf("📧 Mail sent to %v: %s", msg.To, msg.Subject)
	return nil
}

func (m *SMTPMailer) build(msg *Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To...)
	if msg.ReplyTo != "" {
		gm.SetHeader("Reply-To", msg.ReplyTo)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	return gm
}
