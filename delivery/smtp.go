package delivery

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"gopkg.in/gomail.v2"
)

// smtpConfig holds SMTP settings, read from the environment.
type smtpConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

func (c *smtpConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("SMTP_PORT must be positive")
	}
	if c.From == "" {
		return fmt.Errorf("SMTP_FROM is required")
	}
	return nil
}

// SMTPSender delivers codes by email through a gomail dialer.
type SMTPSender struct {
	config *smtpConfig
	dialer *gomail.Dialer
}

// NewSMTPSender builds a sender from SMTP_* environment variables.
func NewSMTPSender() (*SMTPSender, error) {
	cfg, err := env.ParseAs[smtpConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse smtp config: %w", err)
	}
	return newSMTPSender(&cfg)
}

func newSMTPSender(cfg *smtpConfig) (*SMTPSender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &SMTPSender{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipient specified")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s", msg.Code))

	return s.dialer.DialAndSend(m)
}
