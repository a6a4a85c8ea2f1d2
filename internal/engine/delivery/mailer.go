package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"formsmith/internal/platform/config"
)

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type SMTPMailer struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender := m.cfg.FromAddress
	if sender == "" {
		sender = "no-reply@localhost"
	}
	from := sender
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, sender)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	body := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, strings.Join(msg.To, ", "), msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.Body,
	)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, sender, msg.To, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Debug().Strs("to", msg.To).Str("addr", addr).Msg("email sent")
	return nil
}

// LogMailer only logs messages. It is used when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg EmailMessage) error {
	log.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("email delivery skipped: no smtp host configured")
	return nil
}
