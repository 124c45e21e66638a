package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/gomail.v2"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/pkg/logger"
)

var boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Email sends drafts over SMTP
type Email struct {
	cfg  config.EmailConfig
	send func(m *gomail.Message) error
	log  *logger.Logger
}

// NewEmail creates an SMTP notifier
func NewEmail(cfg config.EmailConfig, log *logger.Logger) *Email {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Address, cfg.Password)
	return &Email{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
		log:  log.WithComponent("email"),
	}
}

// Notify emails the draft to the configured reviewer
func (e *Email) Notify(ctx context.Context, msg Message) Result {
	if e.cfg.Address == "" || e.cfg.Password == "" || e.cfg.To == "" {
		return failed(fmt.Errorf("email notifier: %w", config.ErrMissingCredentials))
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	title := CleanContent(msg.Title)
	if title == "" {
		title = "New LinkedIn Post"
	}
	body := CleanContent(msg.Content)
	if body == "" {
		return failed(errors.New("no content to send"))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.Address)
	m.SetHeader("To", e.cfg.To)
	m.SetHeader("Subject", title)
	m.SetBody("text/plain", body)

	if err := e.send(m); err != nil {
		e.log.Error().Err(err).Str("to", e.cfg.To).Msg("Failed to send email")
		return failed(fmt.Errorf("failed to send email: %w", err))
	}

	e.log.Info().Str("to", e.cfg.To).Str("subject", title).Msg("Email notification sent")
	return Result{Sent: true}
}

// CleanContent removes **bold** markers and blank lines
func CleanContent(text string) string {
	return paragraphs(boldPattern.ReplaceAllString(text, "$1"))
}
