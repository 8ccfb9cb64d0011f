package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	pgrepo "github.com/nicklasc86/travelbot/internal/repo/postgres"
	"github.com/nicklasc86/travelbot/internal/services/adminauth"
	reviewsvc "github.com/nicklasc86/travelbot/internal/services/review"
	"github.com/nicklasc86/travelbot/internal/transport/http/dto"
)

type reviewerStub struct {
	pending  []model.Tip
	state    enums.TipState
	err      error
	approved struct {
		id            string
		city, country *string
	}
	rejected string
}

func (s *reviewerStub) ListPending(context.Context) ([]model.Tip, error) {
	return s.pending, s.err
}

func (s *reviewerStub) Approve(_ context.Context, id string, city, country *string) (reviewsvc.ApproveResult, error) {
	if s.err != nil {
		return reviewsvc.ApproveResult{}, s.err
	}
	s.approved.id, s.approved.city, s.approved.country = id, city, country
	return reviewsvc.ApproveResult{ID: id, City: city, Country: country}, nil
}

func (s *reviewerStub) Reject(_ context.Context, id string) (reviewsvc.RejectResult, error) {
	if s.err != nil {
		return reviewsvc.RejectResult{}, s.err
	}
	s.rejected = id
	return reviewsvc.RejectResult{ID: id}, nil
}

func (s *reviewerStub) State(context.Context, string) (enums.TipState, error) {
	return s.state, s.err
}

type authStub struct {
	token     adminauth.Token
	err       error
	otpCode   string
	loggedOut string
}

func (s *authStub) Login(_ context.Context, _, _ string, otpCode string) (adminauth.Token, error) {
	s.otpCode = otpCode
	return s.token, s.err
}

func (s *authStub) Logout(_ context.Context, sid string) error {
	s.loggedOut = sid
	return nil
}

func adminRequest(method, path, body, idParam string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := adminauth.WithClaims(req.Context(), adminauth.Claims{Username: "admin", Role: adminauth.RoleAdmin, SID: "sid-1"})
	if idParam != "" {
		ctx = withURLParam(ctx, "id", idParam)
	}
	return req.WithContext(ctx)
}

func TestAdminApproveForwardsOverridesAndAudits(t *testing.T) {
	reviewer := &reviewerStub{}
	audit := &auditStub{}
	h := NewAdminHandler(nil, reviewer, nil)
	h.AttachAudit(audit)

	rr := httptest.NewRecorder()
	h.Approve(rr, adminRequest(http.MethodPost, "/admin/approve/tip-1", `{"city":"Paris","country":"France"}`, "tip-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if reviewer.approved.id != "tip-1" || stringValue(reviewer.approved.city) != "Paris" || stringValue(reviewer.approved.country) != "France" {
		t.Fatalf("unexpected approve call: %+v", reviewer.approved)
	}

	var resp dto.ApproveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "tip-1" || stringValue(resp.City) != "Paris" || stringValue(resp.Country) != "France" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(audit.events) != 1 || audit.events[0].Action != enums.TipEventReviewApprove {
		t.Fatalf("unexpected audit events: %+v", audit.events)
	}
	if audit.events[0].Props["admin"] != "admin" {
		t.Fatalf("expected admin name in audit props: %+v", audit.events[0].Props)
	}
}

func TestAdminApproveAcceptsEmptyBody(t *testing.T) {
	reviewer := &reviewerStub{}
	h := NewAdminHandler(nil, reviewer, nil)

	rr := httptest.NewRecorder()
	h.Approve(rr, adminRequest(http.MethodPost, "/admin/approve/tip-1", "", "tip-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if reviewer.approved.city != nil || reviewer.approved.country != nil {
		t.Fatalf("expected no overrides, got %+v", reviewer.approved)
	}
}

func TestAdminApproveAndRejectMapNotFound(t *testing.T) {
	reviewer := &reviewerStub{err: fmt.Errorf("get pending tip: %w", pgrepo.ErrTipNotFound)}
	h := NewAdminHandler(nil, reviewer, nil)

	rr := httptest.NewRecorder()
	h.Approve(rr, adminRequest(http.MethodPost, "/admin/approve/missing", `{}`, "missing"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("approve: got %d want %d", rr.Code, http.StatusNotFound)
	}

	rr = httptest.NewRecorder()
	h.Reject(rr, adminRequest(http.MethodPost, "/admin/reject/missing", "", "missing"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("reject: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAdminRejectAudits(t *testing.T) {
	reviewer := &reviewerStub{}
	audit := &auditStub{}
	h := NewAdminHandler(nil, reviewer, nil)
	h.AttachAudit(audit)

	rr := httptest.NewRecorder()
	h.Reject(rr, adminRequest(http.MethodPost, "/admin/reject/tip-9", "", "tip-9"))

	if rr.Code != http.StatusOK || reviewer.rejected != "tip-9" {
		t.Fatalf("unexpected reject: status=%d rejected=%q", rr.Code, reviewer.rejected)
	}
	if len(audit.events) != 1 || audit.events[0].Action != enums.TipEventReviewReject {
		t.Fatalf("unexpected audit events: %+v", audit.events)
	}
}

func TestAdminListPendingShape(t *testing.T) {
	reason := enums.ReviewReasonLowMetadataConfidence
	city := "Unknown"
	confidence := 0.4
	reviewer := &reviewerStub{pending: []model.Tip{{
		ID:         "tip-5",
		Text:       "nice spot",
		City:       &city,
		Confidence: &confidence,
		Reason:     &reason,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	h := NewAdminHandler(nil, reviewer, nil)

	rr := httptest.NewRecorder()
	h.ListPending(rr, adminRequest(http.MethodGet, "/admin/review", "", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp dto.ReviewQueueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Items[0].ID != "tip-5" || stringValue(resp.Items[0].Reason) != "low-metadata-confidence" {
		t.Fatalf("unexpected queue: %+v", resp)
	}
	if resp.Items[0].Country != nil {
		t.Fatalf("unset country must stay null")
	}
	if _, ok := firstQueueItem(t, rr.Body.Bytes())["moderation"]; ok {
		t.Fatalf("tips without a moderation payload must omit the field")
	}
}

func TestAdminListPendingIncludesModerationPayload(t *testing.T) {
	reason := enums.ReviewReasonFlaggedByModeration
	payload := `{"flagged":true,"category_scores":{"violence":0.9}}`
	reviewer := &reviewerStub{pending: []model.Tip{{
		ID:               "tip-9",
		Text:             "flagged text",
		Reason:           &reason,
		ModerationResult: json.RawMessage(payload),
	}}}
	h := NewAdminHandler(nil, reviewer, nil)

	rr := httptest.NewRecorder()
	h.ListPending(rr, adminRequest(http.MethodGet, "/admin/review", "", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Items []struct {
			ID         string `json:"id"`
			Reason     string `json:"reason"`
			Moderation struct {
				Flagged        bool               `json:"flagged"`
				CategoryScores map[string]float64 `json:"category_scores"`
			} `json:"moderation"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "tip-9" || resp.Items[0].Reason != "flagged-by-moderation" {
		t.Fatalf("unexpected queue: %+v", resp)
	}
	if !resp.Items[0].Moderation.Flagged || resp.Items[0].Moderation.CategoryScores["violence"] != 0.9 {
		t.Fatalf("moderation payload not returned verbatim: %s", rr.Body.String())
	}
}

func firstQueueItem(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Items) == 0 {
		t.Fatalf("decode queue items: %v", err)
	}
	return resp.Items[0]
}

func TestAdminStateReportsLifecycle(t *testing.T) {
	h := NewAdminHandler(nil, &reviewerStub{state: enums.TipStatePublished}, nil)

	rr := httptest.NewRecorder()
	h.State(rr, adminRequest(http.MethodGet, "/admin/tips/tip-1/state", "", "tip-1"))

	var resp dto.TipStateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Code != http.StatusOK || resp.State != "published" || resp.ID != "tip-1" {
		t.Fatalf("unexpected state response: %d %+v", rr.Code, resp)
	}
}

func TestAdminLogin(t *testing.T) {
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	h := NewAdminHandler(&authStub{token: adminauth.Token{AccessToken: "jwt", ExpiresAt: expires}}, nil, nil)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"pw"}`)))

	var resp dto.AdminLoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Code != http.StatusOK || resp.AccessToken != "jwt" || resp.TokenType != "Bearer" || !resp.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected login response: %d %+v", rr.Code, resp)
	}

	h = NewAdminHandler(&authStub{err: adminauth.ErrUnauthorized}, nil, nil)
	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"bad"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminLoginPassesOTPCode(t *testing.T) {
	auth := &authStub{err: adminauth.ErrOTPRequired}
	h := NewAdminHandler(auth, nil, nil)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"pw"}`)))
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "OTP_REQUIRED") {
		t.Fatalf("missing code: got %d %s", rr.Code, rr.Body.String())
	}

	auth.err = nil
	auth.token = adminauth.Token{AccessToken: "jwt"}
	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"pw","otp_code":"123456"}`)))
	if rr.Code != http.StatusOK || auth.otpCode != "123456" {
		t.Fatalf("with code: got %d otp=%q", rr.Code, auth.otpCode)
	}
}

func TestAdminLogoutRevokesSession(t *testing.T) {
	auth := &authStub{}
	h := NewAdminHandler(auth, nil, nil)

	rr := httptest.NewRecorder()
	h.Logout(rr, adminRequest(http.MethodPost, "/admin/logout", "", ""))

	if rr.Code != http.StatusOK || auth.loggedOut != "sid-1" {
		t.Fatalf("unexpected logout: status=%d sid=%q", rr.Code, auth.loggedOut)
	}
}

func TestAdminEventsHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := NewAdminHandler(nil, nil, nil)
	h.AttachAudit(&auditStub{history: []model.TipEvent{
		{TipID: "tip-1", Action: enums.TipEventIngestQueued, Props: map[string]any{"reason": "low-metadata-confidence"}, OccurredAt: at},
	}})

	rr := httptest.NewRecorder()
	h.Events(rr, adminRequest(http.MethodGet, "/admin/tips/tip-1/events", "", "tip-1"))

	var resp dto.TipEventsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Code != http.StatusOK || len(resp.Events) != 1 || resp.Events[0].Action != "INGEST_QUEUED" {
		t.Fatalf("unexpected events response: %d %+v", rr.Code, resp)
	}
}

func TestAdminInternalErrorsAreNotLeaked(t *testing.T) {
	h := NewAdminHandler(nil, &reviewerStub{err: errors.New("connection reset by peer")}, nil)

	rr := httptest.NewRecorder()
	h.Reject(rr, adminRequest(http.MethodPost, "/admin/reject/tip-1", "", "tip-1"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rr.Body.String(), "connection reset") {
		t.Fatalf("internal error text leaked: %s", rr.Body.String())
	}
}

func withURLParam(ctx context.Context, key, value string) context.Context {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}
