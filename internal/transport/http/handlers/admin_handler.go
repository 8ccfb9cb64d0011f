package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/pkg/validate"
	"github.com/nicklasc86/travelbot/internal/services/adminauth"
	reviewsvc "github.com/nicklasc86/travelbot/internal/services/review"
	"github.com/nicklasc86/travelbot/internal/transport/http/dto"
	httperrors "github.com/nicklasc86/travelbot/internal/transport/http/errors"
)

type AdminAuthenticator interface {
	Login(ctx context.Context, username, password, otpCode string) (adminauth.Token, error)
	Logout(ctx context.Context, sid string) error
}

type Reviewer interface {
	ListPending(ctx context.Context) ([]model.Tip, error)
	Approve(ctx context.Context, id string, overrideCity, overrideCountry *string) (reviewsvc.ApproveResult, error)
	Reject(ctx context.Context, id string) (reviewsvc.RejectResult, error)
	State(ctx context.Context, id string) (enums.TipState, error)
}

type AuditLog interface {
	AuditRecorder
	History(ctx context.Context, tipID string) ([]model.TipEvent, error)
}

type AdminHandler struct {
	auth     AdminAuthenticator
	reviewer Reviewer
	audit    AuditLog
	logger   *zap.Logger
}

func NewAdminHandler(auth AdminAuthenticator, reviewer Reviewer, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{auth: auth, reviewer: reviewer, logger: logger}
}

func (h *AdminHandler) AttachAudit(audit AuditLog) {
	h.audit = audit
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeUnavailable(w, "ADMIN_AUTH_UNAVAILABLE", "admin auth is unavailable")
		return
	}

	var req dto.AdminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !validate.Required(req.Username) || req.Password == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "username and password are required")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password, req.OTPCode)
	if err != nil {
		switch {
		case errors.Is(err, adminauth.ErrUnauthorized):
			writeUnauthorized(w, "UNAUTHORIZED", "invalid credentials")
		case errors.Is(err, adminauth.ErrOTPRequired):
			writeUnauthorized(w, "OTP_REQUIRED", "one-time code is required")
		case errors.Is(err, adminauth.ErrUnavailable):
			writeUnavailable(w, "ADMIN_AUTH_UNAVAILABLE", "admin auth is not configured")
		default:
			h.logger.Error("admin login failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to log in")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdminLoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
	})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := adminauth.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.auth != nil {
		if err := h.auth.Logout(r.Context(), claims.SID); err != nil {
			h.logger.Error("admin logout failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to log out")
			return
		}
	}
	httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		writeUnavailable(w, "REVIEW_UNAVAILABLE", "review queue is unavailable")
		return
	}

	tips, err := h.reviewer.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list pending tips failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to list review queue")
		return
	}

	items := make([]dto.PendingTip, 0, len(tips))
	for _, tip := range tips {
		var reason *string
		if tip.Reason != nil {
			value := string(*tip.Reason)
			reason = &value
		}
		items = append(items, dto.PendingTip{
			ID:         tip.ID,
			Text:       tip.Text,
			City:       tip.City,
			Country:    tip.Country,
			Confidence: tip.Confidence,
			Reason:     reason,
			Moderation: tip.ModerationResult,
			CreatedAt:  tip.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.ReviewQueueResponse{Items: items, Count: len(items)})
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		writeUnavailable(w, "REVIEW_UNAVAILABLE", "review queue is unavailable")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "tip id is required")
		return
	}

	var req dto.ApproveRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	res, err := h.reviewer.Approve(r.Context(), id, req.City, req.Country)
	if err != nil {
		h.writeReviewError(w, err, id, "failed to approve tip")
		return
	}

	h.record(r.Context(), res.ID, enums.TipEventReviewApprove, map[string]any{
		"admin":   adminName(r.Context()),
		"city":    stringValue(res.City),
		"country": stringValue(res.Country),
	})
	httperrors.Write(w, http.StatusOK, dto.ApproveResponse{ID: res.ID, City: res.City, Country: res.Country})
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		writeUnavailable(w, "REVIEW_UNAVAILABLE", "review queue is unavailable")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "tip id is required")
		return
	}

	res, err := h.reviewer.Reject(r.Context(), id)
	if err != nil {
		h.writeReviewError(w, err, id, "failed to reject tip")
		return
	}

	h.record(r.Context(), res.ID, enums.TipEventReviewReject, map[string]any{"admin": adminName(r.Context())})
	httperrors.Write(w, http.StatusOK, dto.RejectResponse{ID: res.ID})
}

func (h *AdminHandler) State(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		writeUnavailable(w, "REVIEW_UNAVAILABLE", "review queue is unavailable")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	state, err := h.reviewer.State(r.Context(), id)
	if err != nil {
		h.writeReviewError(w, err, id, "failed to load tip state")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.TipStateResponse{ID: id, State: string(state)})
}

func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeUnavailable(w, "AUDIT_UNAVAILABLE", "audit trail is unavailable")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "tip id is required")
		return
	}

	events, err := h.audit.History(r.Context(), id)
	if err != nil {
		h.logger.Error("load tip events failed", zap.Error(err), zap.String("tip_id", id))
		writeInternal(w, "INTERNAL_ERROR", "failed to load tip events")
		return
	}

	out := make([]dto.TipEvent, 0, len(events))
	for _, event := range events {
		out = append(out, dto.TipEvent{
			Action:     string(event.Action),
			Props:      event.Props,
			OccurredAt: event.OccurredAt,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.TipEventsResponse{ID: id, Events: out})
}

func (h *AdminHandler) writeReviewError(w http.ResponseWriter, err error, id, message string) {
	switch {
	case errors.Is(err, reviewsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "tip id is required")
	case reviewsvc.IsNotFound(err):
		writeNotFound(w, "tip is not in the review queue")
	default:
		h.logger.Error(message, zap.Error(err), zap.String("tip_id", id))
		writeInternal(w, "INTERNAL_ERROR", message)
	}
}

func (h *AdminHandler) record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, tipID, action, props); err != nil {
		h.logger.Warn("record tip event failed", zap.Error(err), zap.String("tip_id", tipID), zap.String("action", string(action)))
	}
}

func adminName(ctx context.Context) string {
	claims, ok := adminauth.ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.Username
}
