// Package email delivers operator alert emails over SMTP. Only system-level
// alerts go out by email; lead-facing messaging always uses the chat channels.
package email

import (
	"context"
	"fmt"
	"time"

	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// AlertSender sends operator alerts by SMTP.
type AlertSender struct {
	cfg config.AlertConfig
	log *logger.Logger
}

func NewAlertSender(cfg config.AlertConfig, log *logger.Logger) *AlertSender {
	return &AlertSender{cfg: cfg, log: log}
}

// SendOperatorAlert delivers one plain-text alert to the configured operator
// address. A disabled or unconfigured sender is a no-op, not an error.
func (s *AlertSender) SendOperatorAlert(ctx context.Context, subject, body string) error {
	if s == nil || !s.cfg.IsAlertEmailEnabled() {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.GetAlertFromAddress()); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.cfg.GetAlertToAddress()); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.cfg.GetSMTPHost(),
		gomail.WithPort(s.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.GetSMTPUsername()),
		gomail.WithPassword(s.cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Info("operator alert sent", "subject", subject)
	return nil
}
