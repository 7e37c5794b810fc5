// Package mail sends password reset links over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type Mailer interface {
	SendResetLink(ctx context.Context, to, link string, expiresIn time.Duration) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SSL dials with implicit TLS (port 465). STARTTLS is negotiated otherwise.
	SSL     bool
	Timeout time.Duration
}

// Sender is the part of *gomail.Dialer the SMTP mailer uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	cfg    SMTPConfig
	dialer Sender
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	if cfg.SSL {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPMailer{cfg: cfg, dialer: d}, nil
}

func NewSMTPMailerWithSender(cfg SMTPConfig, s Sender) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, dialer: s}
}

func (m *SMTPMailer) SendResetLink(ctx context.Context, to, link string, expiresIn time.Duration) error {
	msg := resetMessage(m.cfg.From, to, link, expiresIn)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	wait := m.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

func resetMessage(from, to, link string, expiresIn time.Duration) *gomail.Message {
	minutes := int(expiresIn.Round(time.Minute) / time.Minute)
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", strings.TrimSpace(to))
	msg.SetHeader("Subject", "Reset your password")
	msg.SetBody("text/plain", fmt.Sprintf(
		"We received a request to reset your password.\n\nOpen this link within %d minutes to choose a new one:\n%s\n\nIf you did not ask for this, you can ignore this email.\n",
		minutes, link))
	msg.AddAlternative("text/html", fmt.Sprintf(
		`<p>We received a request to reset your password.</p><p><a href="%s">Choose a new password</a> (valid for %d minutes).</p><p>If you did not ask for this, you can ignore this email.</p>`,
		link, minutes))
	return msg
}

// LogMailer records reset requests without sending mail. Local development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendResetLink(_ context.Context, to, _ string, expiresIn time.Duration) error {
	m.logger.Info("smtp disabled; reset email not sent", "to", to, "expires_in", expiresIn.String())
	return nil
}
