package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/realtime"
	"github.com/gumroad/post-delivery/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPosts struct {
	missed    []domain.Post
	sent      []domain.DeliveryRecord
	missedErr error
	sentErr   error
}

func (s *stubPosts) FindMissed(ctx context.Context, purchaseID, workflowID string) ([]domain.Post, error) {
	return s.missed, s.missedErr
}

func (s *stubPosts) SentPosts(ctx context.Context, purchaseID string, page, pageSize int) ([]domain.DeliveryRecord, int64, error) {
	return s.sent, int64(len(s.sent)), s.sentErr
}

type stubSender struct {
	err  error
	sent []string
}

func (s *stubSender) Send(ctx context.Context, postID, purchaseID string) error {
	s.sent = append(s.sent, postID+"/"+purchaseID)
	return s.err
}

type stubQueue struct {
	err      error
	enqueued []string
}

func (s *stubQueue) EnqueueSendMissed(ctx context.Context, purchaseID, workflowID string) error {
	s.enqueued = append(s.enqueued, purchaseID+"/"+workflowID)
	return s.err
}

func newRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/purchases/:id/missed_posts", h.EnqueueSendMissed)
	r.GET("/purchases/:id/missed_posts", h.ListMissedPosts)
	r.GET("/purchases/:id/sent_posts", h.ListSentPosts)
	r.POST("/purchases/:id/posts/:post_id/send", h.SendPost)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, w.Body.String())
	}
	return resp
}

func TestEnqueueSendMissed_Accepted(t *testing.T) {
	q := &stubQueue{}
	h := New(&stubPosts{}, &stubSender{}, q)
	r := newRouter(h)

	w := doJSON(t, r, http.MethodPost, "/purchases/pu-1/missed_posts", map[string]string{"workflow_id": "wf-1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %q)", w.Code, w.Body.String())
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != "pu-1/wf-1" {
		t.Fatalf("enqueued = %v", q.enqueued)
	}
}

func TestEnqueueSendMissed_NoBody(t *testing.T) {
	q := &stubQueue{}
	h := New(&stubPosts{}, &stubSender{}, q)
	r := newRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/purchases/pu-1/missed_posts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != "pu-1/" {
		t.Fatalf("enqueued = %v", q.enqueued)
	}
}

func TestEnqueueSendMissed_UnknownPurchase(t *testing.T) {
	q := &stubQueue{}
	h := New(&stubPosts{missedErr: services.ErrPurchaseNotFound}, &stubSender{}, q)
	r := newRouter(h)

	w := doJSON(t, r, http.MethodPost, "/purchases/nope/missed_posts", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("enqueued despite unknown purchase: %v", q.enqueued)
	}
	if resp := decodeError(t, w); resp.Code != ErrCodeNotFound {
		t.Fatalf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

func TestEnqueueSendMissed_QueueDown(t *testing.T) {
	h := New(&stubPosts{}, &stubSender{}, &stubQueue{err: errors.New("broker unreachable")})
	r := newRouter(h)

	w := doJSON(t, r, http.MethodPost, "/purchases/pu-1/missed_posts", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != ErrCodeEnqueueFailed {
		t.Fatalf("code = %q, want %q", resp.Code, ErrCodeEnqueueFailed)
	}
}

func TestListMissedPosts(t *testing.T) {
	posts := []domain.Post{{ID: "p-1", Title: "Update #1"}, {ID: "p-2", Title: "Update #2"}}
	h := New(&stubPosts{missed: posts}, &stubSender{}, &stubQueue{})
	r := newRouter(h)

	w := doJSON(t, r, http.MethodGet, "/purchases/pu-1/missed_posts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", w.Code, w.Body.String())
	}
	var resp struct {
		Posts []domain.Post `json:"posts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Posts) != 2 || resp.Posts[0].ID != "p-1" {
		t.Fatalf("posts = %+v", resp.Posts)
	}
}

func TestListSentPosts_PaginationEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []domain.DeliveryRecord{
		{ID: "d-1", PostID: "p-1", PurchaseID: "pu-1", EmailID: "em-1", DeliveredAt: now, Post: domain.Post{ID: "p-1", Title: "Update"}},
	}
	h := New(&stubPosts{sent: recs}, &stubSender{}, &stubQueue{})
	r := newRouter(h)

	w := doJSON(t, r, http.MethodGet, "/purchases/pu-1/sent_posts?page=1&page_size=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", w.Code, w.Body.String())
	}
	var resp ListSentPostsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.SentPosts) != 1 || resp.SentPosts[0].EmailID != "em-1" {
		t.Fatalf("sent_posts = %+v", resp.SentPosts)
	}
	if resp.SentPosts[0].DeliveredAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("delivered_at = %q", resp.SentPosts[0].DeliveredAt)
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 10 || resp.Pagination.Total != 1 ||
		resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
}

func TestSendPost_NoContent(t *testing.T) {
	s := &stubSender{}
	h := New(&stubPosts{}, s, &stubQueue{})
	r := newRouter(h)

	w := doJSON(t, r, http.MethodPost, "/purchases/pu-1/posts/p-9/send", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (body %q)", w.Code, w.Body.String())
	}
	if len(s.sent) != 1 || s.sent[0] != "p-9/pu-1" {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestSendPost_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"opted out", services.ErrCustomerOptedOut, http.StatusConflict, ErrCodeCustomerOptedOut},
		{"not eligible", services.ErrSellerNotEligible, http.StatusForbidden, ErrCodeSellerNotEligible},
		{"post missing", services.ErrPostNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"dispatch failed", &services.PostSendError{PostID: "p-9", Err: errors.New("smtp 550")}, http.StatusBadGateway, ErrCodeSendFailed},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&stubPosts{}, &stubSender{err: tc.err}, &stubQueue{})
			r := newRouter(h)

			w := doJSON(t, r, http.MethodPost, "/purchases/pu-1/posts/p-9/send", nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if resp := decodeError(t, w); resp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tc.wantCode)
			}
		})
	}
}

//
// Events stream
//

type stubAuthz struct {
	allowed  bool
	err      error
	lastExt  string
	lastPurc string
}

func (s *stubAuthz) CanSendEmails(ctx context.Context, sellerID string) (bool, error) {
	return true, nil
}

func (s *stubAuthz) CanViewMissedPosts(ctx context.Context, viewerID, purchaseID, sellerExternalID string) (bool, error) {
	s.lastPurc = purchaseID
	s.lastExt = sellerExternalID
	return s.allowed, s.err
}

// stubSubscriber hands out a pre-filled, already-closed channel so the
// stream drains deterministically and the handler returns.
type stubSubscriber struct {
	payloads [][]byte
	channel  string
}

func (s *stubSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	s.channel = channel
	ch := make(chan []byte, len(s.payloads))
	for _, p := range s.payloads {
		ch <- p
	}
	close(ch)
	return ch, func() {}, nil
}

func eventsRouter(h *EventsHandler) *gin.Engine {
	r := gin.New()
	r.GET("/sellers/:external_id/events", h.Stream)
	return r
}

// streamRecorder adds the CloseNotify method gin's streaming path requires
// on the response writer; httptest.ResponseRecorder alone does not have it.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{
		ResponseRecorder: httptest.NewRecorder(),
		closed:           make(chan bool, 1),
	}
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEventsStream_DeliversEvents(t *testing.T) {
	ev := realtime.Event{Type: realtime.OutcomeCompleted, PurchaseID: "pu-1", Message: "All missed emails sent to buyer@example.com"}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	sub := &stubSubscriber{payloads: [][]byte{payload}}
	h := &EventsHandler{Sub: sub, Authz: &stubAuthz{allowed: true}, Log: zerolog.Nop()}
	r := eventsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/sellers/ext-1/events?purchase_id=pu-1", nil)
	req.Header.Set("X-Viewer-ID", "s-1")
	w := newStreamRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", w.Code, w.Body.String())
	}
	if sub.channel != "user_ext-1" {
		t.Fatalf("subscribed channel = %q, want %q", sub.channel, "user_ext-1")
	}
	body := w.Body.String()
	if !strings.Contains(body, "missed_posts_sent") || !strings.Contains(body, "buyer@example.com") {
		t.Fatalf("stream body missing event: %q", body)
	}
}

func TestEventsStream_MissingViewer(t *testing.T) {
	h := &EventsHandler{Sub: &stubSubscriber{}, Authz: &stubAuthz{allowed: true}, Log: zerolog.Nop()}
	r := eventsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/sellers/ext-1/events?purchase_id=pu-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestEventsStream_MissingPurchase(t *testing.T) {
	h := &EventsHandler{Sub: &stubSubscriber{}, Authz: &stubAuthz{allowed: true}, Log: zerolog.Nop()}
	r := eventsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/sellers/ext-1/events", nil)
	req.Header.Set("X-Viewer-ID", "s-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestEventsStream_Forbidden(t *testing.T) {
	az := &stubAuthz{allowed: false}
	h := &EventsHandler{Sub: &stubSubscriber{}, Authz: az, Log: zerolog.Nop()}
	r := eventsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/sellers/ext-1/events?purchase_id=pu-1", nil)
	req.Header.Set("X-Viewer-ID", "intruder")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != ErrCodeForbidden {
		t.Fatalf("code = %q, want %q", resp.Code, ErrCodeForbidden)
	}
	// The decision must see both the cited purchase and the channel seller.
	if az.lastPurc != "pu-1" || az.lastExt != "ext-1" {
		t.Fatalf("authz saw purchase=%q seller=%q", az.lastPurc, az.lastExt)
	}
}
