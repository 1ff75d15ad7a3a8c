package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mediaplatform/models"
)

type Mailer interface {
	Send(ctx context.Context, job models.EmailJob) error
}

type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, job models.EmailJob) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(job.ToName, job.To)
	html := job.HTML
	if html == "" {
		html = job.Text
	}
	message := mail.NewSingleEmail(from, job.Subject, to, job.Text, html)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogMailer stands in when email delivery is disabled.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, job models.EmailJob) error {
	log.Info().Str("to", job.To).Str("subject", job.Subject).Msg("email delivery disabled, message logged only")
	return nil
}

func WelcomeEmail(u models.User) models.EmailJob {
	name := u.FirstName
	if name == "" {
		name = "there"
	}
	return models.EmailJob{
		To:      u.Email,
		ToName:  u.FullName(),
		Subject: "Welcome to Media Platform",
		Text: fmt.Sprintf(`Hi %s,

Your account is ready. You are on the free plan; upgrade to Pro at any time
to unlock the full catalog.`, name),
	}
}

func PaymentFailedEmail(u models.User) models.EmailJob {
	return models.EmailJob{
		To:      u.Email,
		ToName:  u.FullName(),
		Subject: "[ACTION REQUIRED] Your Pro subscription payment failed",
		Text: `We could not collect the latest payment for your Pro subscription.

Your access stays active while the payment is retried. Please update your
payment method to avoid losing Pro features.`,
	}
}
