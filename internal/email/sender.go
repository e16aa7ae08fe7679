package email

import (
	"context"
	"time"

	"sales_crm_backend/platform/config"
)

// FollowUpReminder is the content of a due follow-up reminder.
type FollowUpReminder struct {
	LeadName    string
	Title       string
	Message     string
	ScheduledAt time.Time
}

type Sender interface {
	SendFollowUpReminder(ctx context.Context, toEmail string, reminder FollowUpReminder) error
}

// NoopSender is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendFollowUpReminder(context.Context, string, FollowUpReminder) error {
	return nil
}

func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	), nil
}
