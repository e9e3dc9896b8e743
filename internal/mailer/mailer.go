// Package mailer delivers HTML email over SMTP and hands outbound mail to
// the Redis queue for the worker.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/corkboard/backend/config"
)

// ErrDisabled is returned by Send when no SMTP host is configured.
var ErrDisabled = errors.New("smtp not configured")

// Dialer sends composed messages. *mail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Sender writes HTML mail through an SMTP dialer.
type Sender struct {
	dialer Dialer
	from   string
	logger *zap.Logger
}

// NewSender builds a Sender from config. Without SMTP_HOST every Send returns ErrDisabled.
func NewSender(cfg config.EmailConfig, logger *zap.Logger) *Sender {
	var d Dialer
	if cfg.Enabled() {
		d = mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	}
	return newSender(d, formatFrom(cfg.FromName, cfg.FromAddress), logger)
}

func newSender(d Dialer, from string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{dialer: d, from: from, logger: logger}
}

// Enabled reports whether Send will attempt delivery.
func (s *Sender) Enabled() bool {
	return s.dialer != nil
}

// Send delivers one HTML email.
func (s *Sender) Send(ctx context.Context, to, subject, html string) error {
	if s.dialer == nil {
		s.logger.Debug("email skipped, smtp not configured", zap.String("to", to), zap.String("subject", subject))
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
