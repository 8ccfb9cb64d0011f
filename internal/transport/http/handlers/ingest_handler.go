package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/pkg/validate"
	ingestsvc "github.com/nicklasc86/travelbot/internal/services/ingest"
	"github.com/nicklasc86/travelbot/internal/transport/http/dto"
	httperrors "github.com/nicklasc86/travelbot/internal/transport/http/errors"
)

const maxTipRunes = 4000

type Ingester interface {
	Ingest(ctx context.Context, text string) (ingestsvc.Result, error)
}

type IngestLimiter interface {
	AllowIngest(ctx context.Context, clientKey string) (int64, bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) error
}

type IngestHandler struct {
	ingester Ingester
	limiter  IngestLimiter
	audit    AuditRecorder
	logger   *zap.Logger
}

func NewIngestHandler(ingester Ingester, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{ingester: ingester, logger: logger}
}

func (h *IngestHandler) AttachRateLimiter(limiter IngestLimiter) {
	h.limiter = limiter
}

func (h *IngestHandler) AttachAudit(audit AuditRecorder) {
	h.audit = audit
}

func (h *IngestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		writeUnavailable(w, "INGEST_UNAVAILABLE", "ingestion pipeline is not configured")
		return
	}

	if h.limiter != nil {
		retryAfter, allowed, err := h.limiter.AllowIngest(r.Context(), clientKey(r))
		switch {
		case err != nil:
			h.logger.Warn("ingest rate limit check failed, allowing request", zap.Error(err))
		case !allowed:
			httperrors.WriteRateLimited(w, httperrors.RateLimitError{
				Code:          "TOO_MANY_REQUESTS",
				Message:       "too many submissions, slow down",
				RetryAfterSec: retryAfter,
			})
			return
		}
	}

	var req dto.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !validate.RequiredPtr(req.TipText) {
		writeBadRequest(w, "VALIDATION_ERROR", "tip_text is required")
		return
	}
	if !validate.MaxRunes(*req.TipText, maxTipRunes) {
		writeBadRequest(w, "VALIDATION_ERROR", "tip_text is too long")
		return
	}

	res, err := h.ingester.Ingest(r.Context(), *req.TipText)
	if err != nil {
		var upstream *ingestsvc.UpstreamError
		switch {
		case errors.Is(err, ingestsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "tip_text is required")
		case errors.As(err, &upstream):
			h.record(r.Context(), "", enums.TipEventIngestFailed, map[string]any{"stage": string(upstream.Stage)})
			httperrors.Write(w, http.StatusBadGateway, dto.UpstreamErrorResponse{
				Code:    "UPSTREAM_ERROR",
				Message: "the tip could not be processed, try again later",
				Stage:   string(upstream.Stage),
			})
		default:
			h.logger.Error("ingest tip failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to ingest tip")
		}
		return
	}

	resp := dto.IngestResponse{
		Status:     string(res.Status),
		ID:         res.ID,
		Attributes: attributesDTO(res.Attributes),
	}
	action := enums.TipEventIngestApproved
	props := map[string]any{}
	if res.Reason != nil {
		reason := string(*res.Reason)
		resp.Reason = &reason
		action = enums.TipEventIngestQueued
		props["reason"] = reason
	}
	if res.Attributes != nil {
		props["confidence"] = res.Attributes.Confidence
	}
	h.record(r.Context(), res.ID, action, props)

	httperrors.Write(w, http.StatusOK, resp)
}

// record stores an audit event. Failed submissions have no tip id and are keyed as "-".
func (h *IngestHandler) record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) {
	if h.audit == nil {
		return
	}
	if tipID == "" {
		tipID = "-"
	}
	if err := h.audit.Record(ctx, tipID, action, props); err != nil {
		h.logger.Warn("record tip event failed", zap.Error(err), zap.String("tip_id", tipID), zap.String("action", string(action)))
	}
}

func attributesDTO(loc *model.Location) *dto.TipAttributes {
	if loc == nil {
		return nil
	}
	confidence := loc.Confidence
	return &dto.TipAttributes{City: loc.City, Country: loc.Country, Confidence: &confidence}
}
