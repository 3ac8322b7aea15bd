// Package services – SendService
//
// This file implements the post sender: the component that emails exactly
// one post to one purchase. Every send re-checks eligibility and
// contactability, then runs the actual dispatch under the delivery guard so
// retried or racing callers cannot email the same pair twice within the
// guard window.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/guard"
	"github.com/gumroad/post-delivery/internal/mail"
	"github.com/gumroad/post-delivery/internal/observability"
	"github.com/gumroad/post-delivery/internal/repo"
	"github.com/gumroad/post-delivery/internal/sysutil"
)

// SendService emails single posts to purchases.
type SendService struct {
	DB          *gorm.DB
	Guard       *guard.Guard
	Mailer      mail.Mailer
	Eligibility *Eligibility

	// FromAddress is the platform envelope sender; the seller's name is
	// carried as the display name, with FromName as the fallback when the
	// seller has none.
	FromAddress string
	FromName    string
}

// Send resolves both identifiers and delivers the post to the purchase.
// It returns ErrPostNotFound / ErrPurchaseNotFound for unknown ids, and
// otherwise behaves like SendPost.
func (s *SendService) Send(ctx context.Context, postID, purchaseID string) error {
	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	purchase, err := repo.GetPurchase(ctx, s.DB, purchaseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPurchaseNotFound
		}
		return err
	}
	return s.SendPost(ctx, post, purchase)
}

// SendPost emails one post to one purchase. The purchase row is read again
// before the eligibility checks, so the decision reflects the database and
// not whatever snapshot the caller is holding.
//
// Failure modes:
//   - ErrSellerNotEligible / ErrCustomerOptedOut propagate unchanged.
//   - Any dispatch failure is wrapped in a PostSendError naming the post.
//
// A duplicate invocation inside the guard window performs no dispatch and
// returns nil; the earlier outcome stands.
func (s *SendService) SendPost(ctx context.Context, post *domain.Post, purchase *domain.Purchase) error {
	tr := otel.Tracer("services/SendService")
	ctx, span := tr.Start(ctx, "SendPost",
		trace.WithAttributes(
			attribute.String("post.id", post.ID),
			attribute.String("purchase.id", purchase.ID),
		),
	)
	defer span.End()

	// Re-read the purchase so the checks below see current state. The
	// caller's copy may predate an opt-out or a seller suspension that
	// happened mid-batch.
	fresh, err := repo.GetPurchase(ctx, s.DB, purchase.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPurchaseNotFound
		}
		return err
	}
	purchase = fresh

	if err := s.Eligibility.CanSend(ctx, &purchase.Seller); err != nil {
		if errors.Is(err, ErrSellerNotEligible) {
			observability.SendFailures.WithLabelValues("not_eligible").Inc()
		}
		return err
	}
	if err := s.Eligibility.CanContact(ctx, purchase); err != nil {
		observability.SendFailures.WithLabelValues("opted_out").Inc()
		return err
	}

	res, err := s.Guard.Do(ctx, guard.Key(post.ID, purchase.ID), func(ctx context.Context) (string, error) {
		return s.dispatch(ctx, post, purchase)
	})
	if errors.Is(err, guard.ErrInFlight) {
		observability.GuardSuppressed.Inc()
		return nil
	}
	if err != nil {
		observability.SendFailures.WithLabelValues("dispatch").Inc()
		return &PostSendError{PostID: post.ID, Err: err}
	}
	if !res.Executed {
		observability.GuardSuppressed.Inc()
		return nil
	}

	observability.PostsSent.Inc()
	return nil
}

// dispatch is the guarded action: email the purchase, then replace the
// delivery record for the pair (delete-then-insert as one transaction, so
// the pair never shows zero or two records). The email id it returns is the
// outcome the guard memoizes for duplicate callers.
func (s *SendService) dispatch(ctx context.Context, post *domain.Post, purchase *domain.Purchase) (string, error) {
	subscriptionID := ""
	if purchase.SubscriptionID != nil {
		subscriptionID = *purchase.SubscriptionID
	}
	e := mail.NewEmail(s.FromAddress, purchase.Email,
		mail.WithSubject(post.Title),
		mail.WithHTML(post.Body),
		mail.WithNames(sysutil.FirstNonEmpty(purchase.Seller.Name, s.FromName), ""),
		mail.WithPurchaseContext(purchase.ID, subscriptionID),
	)

	emailID, err := s.Mailer.Send(ctx, e)
	if err != nil {
		return "", err
	}
	if _, err := repo.ReplaceDelivery(ctx, s.DB, post.ID, purchase.ID, emailID); err != nil {
		return "", err
	}
	return emailID, nil
}
