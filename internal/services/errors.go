// Package services implements the post-delivery pipeline: eligibility
// checks, single-post sends, missed-post lookups, and the batch dispatcher.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and the
// worker; translation into user-facing messages or HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSellerNotEligible is returned when the seller is not currently
	// allowed to send creator emails (suspended, unverified, over quota).
	// It is a seller-level condition: it terminates an entire batch, not a
	// single item.
	ErrSellerNotEligible = errors.New("seller is not eligible to send emails")

	// ErrCustomerOptedOut is returned when the purchase's recipient has
	// opted out of receiving communications. Like ErrSellerNotEligible it
	// terminates an entire batch.
	ErrCustomerOptedOut = errors.New("customer has opted out of emails")

	// ErrPurchaseNotFound indicates the requested purchase does not exist.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrPostNotFound indicates the requested post does not exist, is
	// deleted, or is unpublished.
	ErrPostNotFound = errors.New("post not found")

	// ErrWorkflowNotFound indicates the requested workflow does not exist
	// or does not belong to the purchase's seller.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// PostSendError wraps any non-eligibility failure of a single send with the
// identity of the post that failed. It aborts the remaining items of a batch
// while leaving prior successes delivered.
type PostSendError struct {
	PostID string
	Err    error
}

// Error implements error.
func (e *PostSendError) Error() string {
	return fmt.Sprintf("sending post %s: %v", e.PostID, e.Err)
}

// Unwrap exposes the underlying dispatch error for errors.Is / errors.As.
func (e *PostSendError) Unwrap() error { return e.Err }

// batchTerminal reports whether err is a whole-batch condition that must
// propagate unwrapped (the caller should act on it, e.g. re-enable sending).
func batchTerminal(err error) bool {
	return errors.Is(err, ErrSellerNotEligible) || errors.Is(err, ErrCustomerOptedOut)
}
