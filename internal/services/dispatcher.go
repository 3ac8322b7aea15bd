// Package services – Dispatcher
//
// This file implements the batch dispatcher: one invocation catches a single
// purchase up on every post it should have received. The worker runs it off
// a queued job; nothing is returned to the original caller, so terminal
// outcomes are reported over the seller's realtime channel.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/observability"
	"github.com/gumroad/post-delivery/internal/realtime"
	"github.com/gumroad/post-delivery/internal/repo"
)

// PostSender is the single-send dependency of the dispatcher. *SendService
// implements it; tests substitute fakes.
type PostSender interface {
	SendPost(ctx context.Context, post *domain.Post, purchase *domain.Purchase) error
}

// Dispatcher runs missed-post catch-up batches.
type Dispatcher struct {
	DB          *gorm.DB
	Sender      PostSender
	Eligibility *Eligibility
	Notifier    *realtime.Notifier
}

// SendMissed delivers, in order, every missed post for the purchase
// (optionally restricted to one workflow).
//
// The batch is strictly sequential. Eligibility failures (from the
// batch-level pre-check or from an individual send) abort everything and
// propagate unwrapped; any other send failure arrives as a PostSendError
// naming the failing post and aborts the remaining items, while posts sent
// before it stay delivered. The terminal outcome is published on the
// seller's channel; unknown purchase or workflow ids return before any work
// or notification happens.
func (d *Dispatcher) SendMissed(ctx context.Context, purchaseID, workflowID string) error {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "SendMissed",
		trace.WithAttributes(
			attribute.String("purchase.id", purchaseID),
			attribute.String("workflow.id", workflowID),
		),
	)
	defer span.End()

	purchase, err := repo.GetPurchase(ctx, d.DB, purchaseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPurchaseNotFound
		}
		return err
	}

	var workflow *domain.Workflow
	if workflowID != "" {
		workflow, err = repo.GetWorkflow(ctx, d.DB, workflowID, purchase.SellerID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrWorkflowNotFound
			}
			return err
		}
	}

	err = d.run(ctx, purchase, workflow)
	if err != nil {
		observability.Batches.WithLabelValues("failed").Inc()
		d.Notifier.NotifyFailed(ctx, &purchase.Seller, purchase, workflow)
		return err
	}
	observability.Batches.WithLabelValues("completed").Inc()
	d.Notifier.NotifyCompleted(ctx, &purchase.Seller, purchase, workflow)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, purchase *domain.Purchase, workflow *domain.Workflow) error {
	// Batch-level pre-check. The per-item checks inside the sender stay:
	// eligibility can change mid-batch, this one just avoids starting a
	// hopeless batch.
	if err := d.Eligibility.CanSend(ctx, &purchase.Seller); err != nil {
		return err
	}
	if err := d.Eligibility.CanContact(ctx, purchase); err != nil {
		return err
	}

	workflowID := ""
	if workflow != nil {
		workflowID = workflow.ID
	}
	posts, err := repo.ListMissedPosts(ctx, d.DB, purchase, workflowID)
	if err != nil {
		return err
	}

	for i := range posts {
		if err := d.Sender.SendPost(ctx, &posts[i], purchase); err != nil {
			if batchTerminal(err) {
				return err
			}
			// Already a PostSendError from the sender; keep the post
			// identity intact for diagnostics.
			var pse *PostSendError
			if errors.As(err, &pse) {
				return err
			}
			return &PostSendError{PostID: posts[i].ID, Err: err}
		}
	}
	return nil
}
