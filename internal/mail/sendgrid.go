package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer dispatches emails through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
}

// NewSendGridMailer builds a mailer from an API key.
func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey)}
}

// Send implements Mailer. The returned id is SendGrid's X-Message-Id, which
// delivery records store so a send can be traced in the provider's logs.
func (m *SendGridMailer) Send(ctx context.Context, e Email) (string, error) {
	from := sgmail.NewEmail(e.FromName, e.From)
	to := sgmail.NewEmail(e.ToName, e.To)
	msg := sgmail.NewSingleEmail(from, e.Subject, to, "", e.HTML)

	if len(msg.Personalizations) > 0 {
		p := msg.Personalizations[0]
		if e.PurchaseID != "" {
			p.SetCustomArg("purchase_id", e.PurchaseID)
		}
		if e.SubscriptionID != "" {
			p.SetCustomArg("subscription_id", e.SubscriptionID)
		}
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}

	id := resp.Headers["X-Message-Id"]
	if len(id) == 0 {
		return "", nil
	}
	return id[0], nil
}
