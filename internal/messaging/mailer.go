package messaging

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, plainText string) error
}

// SendGridMailer delivers through SendGrid, or logs when no API key is set.
type SendGridMailer struct {
	apiKey   string
	from     string
	fromName string
}

func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	if apiKey == "" {
		slog.Warn("email service in log-only mode (set SENDGRID_API_KEY for production)")
	}
	return &SendGridMailer{apiKey: apiKey, from: from, fromName: fromName}
}

func (m *SendGridMailer) Send(ctx context.Context, toEmail, toName, subject, plainText string) error {
	if m.apiKey == "" {
		slog.Info("email (log-only)", "to", toEmail, "subject", subject)
		return nil
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		subject,
		mail.NewEmail(toName, toEmail),
		plainText,
		"<p>"+strings.ReplaceAll(html.EscapeString(plainText), "\n", "<br>")+"</p>",
	)
	resp, err := sendgrid.NewSendClient(m.apiKey).SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
