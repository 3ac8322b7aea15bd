package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/errtrack"
)

// Notifier formats and publishes batch outcomes on the owning seller's
// channel.
type Notifier struct {
	Pub      Publisher
	Reporter errtrack.Reporter
	Log      zerolog.Logger
}

// NotifyCompleted publishes a success event for the batch.
func (n *Notifier) NotifyCompleted(ctx context.Context, seller *domain.Seller, purchase *domain.Purchase, workflow *domain.Workflow) {
	n.publish(ctx, seller, purchase, workflow, OutcomeCompleted,
		fmt.Sprintf("%s sent to %s", batchName(workflow), purchase.Email))
}

// NotifyFailed publishes a failure event for the batch.
func (n *Notifier) NotifyFailed(ctx context.Context, seller *domain.Seller, purchase *domain.Purchase, workflow *domain.Workflow) {
	n.publish(ctx, seller, purchase, workflow, OutcomeFailed,
		fmt.Sprintf("%s failed to send to %s", batchName(workflow), purchase.Email))
}

// publish never returns an error: the batch outcome is already settled, so a
// broken channel is logged and handed to the error tracker instead of
// unwinding the send.
func (n *Notifier) publish(ctx context.Context, seller *domain.Seller, purchase *domain.Purchase, workflow *domain.Workflow, outcome, message string) {
	ev := Event{
		Type:       outcome,
		PurchaseID: purchase.ID,
		Message:    message,
	}
	if workflow != nil {
		ev.WorkflowID = workflow.ID
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.report(ctx, err, seller, purchase)
		return
	}
	if err := n.Pub.Publish(ctx, ChannelFor(seller.ExternalID), payload); err != nil {
		n.report(ctx, err, seller, purchase)
	}
}

func (n *Notifier) report(ctx context.Context, err error, seller *domain.Seller, purchase *domain.Purchase) {
	n.Log.Error().
		Err(err).
		Str("seller_id", seller.ID).
		Str("purchase_id", purchase.ID).
		Msg("realtime publish failed")
	if n.Reporter != nil {
		n.Reporter.Report(ctx, err, map[string]string{
			"seller_id":   seller.ID,
			"purchase_id": purchase.ID,
		})
	}
}

// batchName labels the batch for operator-readable messages.
func batchName(workflow *domain.Workflow) string {
	if workflow != nil {
		return workflow.Name
	}
	return "All missed emails"
}
