package notifications

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/careloop/booking-platform/pkg/logging"
)

// EmailMessage is a plain-text email to a single recipient.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// EmailSender delivers the email mirror for in-app notifications.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SendGridSender sends email through the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	logger    *logging.Logger
}

var _ EmailSender = (*SendGridSender)(nil)

func NewSendGridSender(apiKey, fromName, fromEmail string, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("notifications: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notifications: sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	s.logger.Info("email sent", "to", msg.To, "status", resp.StatusCode)
	return nil
}
