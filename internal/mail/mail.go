// Package mail defines the outbound email contract used by the delivery
// pipeline and its SendGrid-backed implementation. The pipeline only ever
// talks to the Mailer interface; tests substitute an in-memory fake.
package mail

import "context"

// Email is one outbound creator email. PurchaseID and SubscriptionID carry
// the redirect/subscription context the mail provider embeds in unsubscribe
// and content links.
type Email struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	HTML     string

	PurchaseID     string
	SubscriptionID string
}

// Mailer dispatches a single email and returns the provider's message id.
// Dispatch is asynchronous on the provider side; a nil error means the
// provider accepted the message, not that it reached the inbox.
type Mailer interface {
	Send(ctx context.Context, e Email) (id string, err error)
}

// Option mutates an Email during construction.
type Option func(*Email)

// NewEmail builds an Email from sender, recipient and options.
func NewEmail(from, to string, opts ...Option) Email {
	e := Email{From: from, To: to}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithSubject sets the subject line.
func WithSubject(s string) Option {
	return func(e *Email) { e.Subject = s }
}

// WithHTML sets the HTML body.
func WithHTML(html string) Option {
	return func(e *Email) { e.HTML = html }
}

// WithNames sets display names for sender and recipient.
func WithNames(fromName, toName string) Option {
	return func(e *Email) {
		e.FromName = fromName
		e.ToName = toName
	}
}

// WithPurchaseContext attaches the purchase (and optional subscription) the
// email belongs to.
func WithPurchaseContext(purchaseID, subscriptionID string) Option {
	return func(e *Email) {
		e.PurchaseID = purchaseID
		e.SubscriptionID = subscriptionID
	}
}
