// Package handlers defines HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case; generic codes mirror HTTP
// status semantics, domain-specific codes cover outcomes that status alone
// cannot convey. All error responses include both a status and a code.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeSellerNotEligible = "seller_not_eligible"
	ErrCodeCustomerOptedOut  = "customer_opted_out"
	ErrCodeSendFailed        = "send_failed"
	ErrCodeEnqueueFailed     = "enqueue_failed"
	ErrCodeListFailed        = "list_failed"
	ErrCodeStreamFailed      = "stream_failed"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
