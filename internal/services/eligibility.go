// Package services – Eligibility
//
// This file implements the eligibility checker: two side-effect-free
// predicates deciding whether a seller may send creator emails and whether a
// purchaser may be contacted. Both are evaluated fresh on every send attempt
// because either answer can change between the time a batch is queued and
// the time an individual item is processed.
package services

import (
	"context"

	"github.com/gumroad/post-delivery/internal/authz"
	"github.com/gumroad/post-delivery/internal/domain"
)

// Eligibility answers the per-send permission questions. It caches nothing.
type Eligibility struct {
	Authz authz.Authorizer
}

// CanSend returns nil when the seller may send creator emails, and
// ErrSellerNotEligible otherwise. The underlying answer comes from the
// authorization collaborator.
func (e *Eligibility) CanSend(ctx context.Context, seller *domain.Seller) error {
	ok, err := e.Authz.CanSendEmails(ctx, seller.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSellerNotEligible
	}
	return nil
}

// CanContact returns nil when the purchase's recipient accepts creator
// emails, and ErrCustomerOptedOut otherwise.
func (e *Eligibility) CanContact(_ context.Context, purchase *domain.Purchase) error {
	if !purchase.CanContact {
		return ErrCustomerOptedOut
	}
	return nil
}
