// Delivery HTTP handlers.
//
// This file exposes REST endpoints for the post-delivery pipeline:
//   - POST /purchases/{id}/missed_posts           (enqueue a catch-up batch)
//   - GET  /purchases/{id}/missed_posts           (list missed posts)
//   - GET  /purchases/{id}/sent_posts             (delivery history)
//   - POST /purchases/{id}/posts/{post_id}/send   (synchronous single send)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/repo"
	"github.com/gumroad/post-delivery/internal/services"
	"github.com/gumroad/post-delivery/internal/sysutil"
)

// isNotFound reports whether err is a record-not-found from any layer.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, services.ErrPurchaseNotFound) ||
		errors.Is(err, services.ErrPostNotFound) ||
		errors.Is(err, services.ErrWorkflowNotFound)
}

//
// Service contracts (context-aware)
//

// PostService exposes missed-post and sent-post lookups.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PostService interface {
	// FindMissed lists the posts the purchase should have received but has
	// not, oldest first; optionally restricted to one workflow.
	FindMissed(ctx context.Context, purchaseID, workflowID string) ([]domain.Post, error)
	// SentPosts lists one page of the most recent delivery record per post,
	// newest first, along with the total count.
	SentPosts(ctx context.Context, purchaseID string, page, pageSize int) ([]domain.DeliveryRecord, int64, error)
}

// SendService delivers a single post to a purchase.
type SendService interface {
	Send(ctx context.Context, postID, purchaseID string) error
}

// Enqueuer queues a send-missed batch for asynchronous execution.
type Enqueuer interface {
	EnqueueSendMissed(ctx context.Context, purchaseID, workflowID string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the delivery pipeline. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	posts  PostService
	sender SendService
	queue  Enqueuer
}

// New constructs a Handlers instance bound to the given collaborators.
func New(posts PostService, sender SendService, queue Enqueuer) *Handlers {
	return &Handlers{posts: posts, sender: sender, queue: queue}
}

// viewerID extracts the authenticated viewer id from the Gin context (set
// by upstream auth middleware), falling back to the X-Viewer-ID header.
func viewerID(c *gin.Context) string {
	if v, ok := c.Get("viewerID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Viewer-ID")); h != "" {
			return h
		}
	}
	return ""
}

// enqueueRequest is the body of POST /purchases/{id}/missed_posts.
type enqueueRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// EnqueueSendMissed queues a missed-post catch-up batch for the purchase.
// The batch runs asynchronously; its outcome arrives on the seller's
// realtime channel, so the response is 202 with no result body.
func (h *Handlers) EnqueueSendMissed(c *gin.Context) {
	purchaseID := c.Param("id")

	var req enqueueRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
			return
		}
	}

	// Reject unknown ids synchronously; a queued job could only report the
	// mistake over a channel nobody is watching.
	if _, err := h.posts.FindMissed(c.Request.Context(), purchaseID, req.WorkflowID); err != nil {
		h.failFromService(c, err)
		return
	}

	if err := h.queue.EnqueueSendMissed(c.Request.Context(), purchaseID, req.WorkflowID); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeEnqueueFailed, "could not enqueue batch")
		return
	}
	c.Status(http.StatusAccepted)
}

// ListMissedPosts returns the current missed-post snapshot for a purchase.
// An optional workflow_id query parameter restricts the set.
func (h *Handlers) ListMissedPosts(c *gin.Context) {
	posts, err := h.posts.FindMissed(c.Request.Context(), c.Param("id"), c.Query("workflow_id"))
	if err != nil {
		h.failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"posts": posts})
}

// sentPost is one entry of the delivery history payload.
type sentPost struct {
	Post        domain.Post `json:"post"`
	EmailID     string      `json:"email_id"`
	DeliveredAt string      `json:"delivered_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSentPostsResponse wraps a page of delivery history and pagination
// information.
type ListSentPostsResponse struct {
	SentPosts  []sentPost `json:"sent_posts"`
	Pagination Pagination `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = sysutil.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = sysutil.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListSentPosts returns a page of the purchase's delivery history, newest
// first.
func (h *Handlers) ListSentPosts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	recs, total, err := h.posts.SentPosts(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		h.failFromService(c, err)
		return
	}
	out := make([]sentPost, 0, len(recs))
	for _, r := range recs {
		out = append(out, sentPost{
			Post:        r.Post,
			EmailID:     r.EmailID,
			DeliveredAt: r.DeliveredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSentPostsResponse{
		SentPosts: out,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SendPost synchronously delivers one post to one purchase ("resend this
// email"). Duplicate requests inside the guard window succeed without a
// second dispatch.
func (h *Handlers) SendPost(c *gin.Context) {
	err := h.sender.Send(c.Request.Context(), c.Param("post_id"), c.Param("id"))
	if err != nil {
		h.failFromService(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// failFromService maps service-level errors onto the HTTP error envelope.
func (h *Handlers) failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPurchaseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "purchase not found")
	case errors.Is(err, services.ErrPostNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "post not found")
	case errors.Is(err, services.ErrWorkflowNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "workflow not found")
	case errors.Is(err, services.ErrSellerNotEligible):
		fail(c, http.StatusForbidden, ErrCodeSellerNotEligible, "seller is not eligible to send emails")
	case errors.Is(err, services.ErrCustomerOptedOut):
		fail(c, http.StatusConflict, ErrCodeCustomerOptedOut, "customer has opted out of emails")
	default:
		var pse *services.PostSendError
		if errors.As(err, &pse) {
			fail(c, http.StatusBadGateway, ErrCodeSendFailed, pse.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
