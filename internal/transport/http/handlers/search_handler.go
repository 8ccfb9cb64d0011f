package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	searchsvc "github.com/nicklasc86/travelbot/internal/services/search"
	"github.com/nicklasc86/travelbot/internal/transport/http/dto"
	httperrors "github.com/nicklasc86/travelbot/internal/transport/http/errors"
)

type Searcher interface {
	Query(ctx context.Context, query string, topK int) (searchsvc.Result, error)
}

type SearchHandler struct {
	searcher Searcher
	logger   *zap.Logger
}

func NewSearchHandler(searcher Searcher, logger *zap.Logger) *SearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandler{searcher: searcher, logger: logger}
}

func (h *SearchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeUnavailable(w, "SEARCH_UNAVAILABLE", "search is not configured")
		return
	}

	var req dto.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.TopK < 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "top_k must be positive")
		return
	}

	res, err := h.searcher.Query(r.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, searchsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "query is required")
			return
		}
		h.logger.Warn("search query failed", zap.Error(err))
		httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
			Code:    "UPSTREAM_ERROR",
			Message: "search is temporarily unavailable",
		})
		return
	}

	matches := make([]dto.SearchMatch, 0, len(res.Matches))
	for _, m := range res.Matches {
		matches = append(matches, dto.SearchMatch{
			ID:      m.ID,
			Score:   m.Score,
			City:    m.Metadata.City,
			Country: m.Metadata.Country,
			Text:    m.Metadata.Text,
		})
	}

	confidence := res.Location.Confidence
	httperrors.Write(w, http.StatusOK, dto.SearchResponse{
		Location: dto.TipAttributes{
			City:       res.Location.City,
			Country:    res.Location.Country,
			Confidence: &confidence,
		},
		Matches: matches,
	})
}
