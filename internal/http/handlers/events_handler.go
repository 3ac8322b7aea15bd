package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gumroad/post-delivery/internal/authz"
	"github.com/gumroad/post-delivery/internal/http/middleware"
	"github.com/gumroad/post-delivery/internal/realtime"
)

// EventsHandler streams a seller's delivery events over Server-Sent Events.
// Batch outcomes are published on the seller's channel by the worker; this
// handler is the read side consumed by the seller's dashboard.
type EventsHandler struct {
	Sub   realtime.Subscriber
	Authz authz.Authorizer
	Log   zerolog.Logger
}

// Stream handles GET /sellers/{external_id}/events.
//
// The caller must identify itself (viewer id) and name the purchase whose
// activity it wants to observe; the stream is refused unless the viewer may
// watch that purchase. Events are forwarded verbatim as SSE "message"
// frames until the client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing viewer identity")
		return
	}

	purchaseID := c.Query("purchase_id")
	if purchaseID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "purchase_id is required")
		return
	}

	sellerExternalID := c.Param("external_id")
	allowed, err := h.Authz.CanViewMissedPosts(c.Request.Context(), viewer, purchaseID, sellerExternalID)
	if err != nil {
		h.failFromAuthz(c, err)
		return
	}
	if !allowed {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed to watch this channel")
		return
	}

	channel := realtime.ChannelFor(sellerExternalID)
	events, cancel, err := h.Sub.Subscribe(c.Request.Context(), channel)
	if err != nil {
		h.Log.Error().Err(err).Str("channel", channel).Msg("subscribe failed")
		fail(c, http.StatusInternalServerError, ErrCodeStreamFailed, "could not open event stream")
		return
	}
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case payload, okc := <-events:
			if !okc {
				return false
			}
			c.SSEvent("message", string(payload))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *EventsHandler) failFromAuthz(c *gin.Context, err error) {
	// A missing purchase and a forbidden purchase look the same to the
	// stream consumer; keep the 404 so callers can distinguish typos.
	if isNotFound(err) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown purchase or seller")
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("authorization check failed")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
