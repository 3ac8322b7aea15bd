// Package authz answers the two authorization questions the delivery
// pipeline asks: may a seller send creator emails, and may a viewer watch a
// purchase's missed-post activity. The rest of the platform (sessions,
// roles, OAuth) lives outside this service; callers inject an Authorizer.
package authz

import (
	"context"

	"gorm.io/gorm"

	"github.com/gumroad/post-delivery/internal/repo"
)

// Authorizer is the authorization collaborator consumed by the pipeline.
type Authorizer interface {
	// CanSendEmails reports whether the seller is currently allowed to send
	// creator emails. Evaluated fresh on every attempt; eligibility can
	// change between enqueue and processing.
	CanSendEmails(ctx context.Context, sellerID string) (bool, error)

	// CanViewMissedPosts reports whether viewerID may observe missed-post
	// activity for the given purchase on the channel of the seller with
	// external id sellerExternalID. The purchase must belong to both the
	// viewer and the channel's seller.
	CanViewMissedPosts(ctx context.Context, viewerID, purchaseID, sellerExternalID string) (bool, error)
}

// DBAuthorizer derives both answers from the record store: a seller may send
// unless suspended, and only the purchase's own seller may watch its
// missed-post activity.
type DBAuthorizer struct {
	DB *gorm.DB
}

// CanSendEmails implements Authorizer.
func (a *DBAuthorizer) CanSendEmails(ctx context.Context, sellerID string) (bool, error) {
	s, err := repo.GetSeller(ctx, a.DB, sellerID)
	if err != nil {
		return false, err
	}
	return !s.Suspended, nil
}

// CanViewMissedPosts implements Authorizer. A subscription is allowed only
// when the cited purchase belongs to the viewer AND to the seller whose
// channel is being watched; citing your own purchase never opens another
// seller's channel.
func (a *DBAuthorizer) CanViewMissedPosts(ctx context.Context, viewerID, purchaseID, sellerExternalID string) (bool, error) {
	p, err := repo.GetPurchase(ctx, a.DB, purchaseID)
	if err != nil {
		return false, err
	}
	s, err := repo.GetSellerByExternalID(ctx, a.DB, sellerExternalID)
	if err != nil {
		return false, err
	}
	return p.SellerID == viewerID && p.SellerID == s.ID, nil
}
