package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	pgrepo "github.com/nicklasc86/travelbot/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	ListPending(ctx context.Context) ([]model.Tip, error)
	GetPending(ctx context.Context, id string) (model.Tip, error)
	DeletePending(ctx context.Context, id string) error
	Promote(ctx context.Context, tip model.ApprovedTip) error
	StateOf(ctx context.Context, id string) (enums.TipState, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, id string, values []float32, meta model.VectorMetadata) error
}

// Archiver keeps a copy of rejected tips. Failures are logged and never block a rejection.
type Archiver interface {
	ArchiveRejected(ctx context.Context, tip model.Tip) error
}

type Observer interface {
	RecordReview(decision string)
}

type Dependencies struct {
	Store    Store
	Embedder Embedder
	Index    VectorIndex
	Archiver Archiver
	Observer Observer
	Logger   *zap.Logger
}

type ApproveResult struct {
	ID      string  `json:"id"`
	City    *string `json:"city"`
	Country *string `json:"country"`
}

type RejectResult struct {
	ID string `json:"id"`
}

type Service struct {
	store    Store
	embedder Embedder
	index    VectorIndex
	archiver Archiver
	observer Observer
	logger   *zap.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    deps.Store,
		embedder: deps.Embedder,
		index:    deps.Index,
		archiver: deps.Archiver,
		observer: deps.Observer,
		logger:   logger,
	}
}

func (s *Service) ListPending(ctx context.Context) ([]model.Tip, error) {
	if s.store == nil {
		return nil, fmt.Errorf("review store is nil")
	}

	items, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Tip{}
	}
	return items, nil
}

// Approve re-embeds the tip with its final attributes, indexes it, then promotes it out of the queue.
// Any failure before the promotion leaves the tip queued, so a retry is safe.
func (s *Service) Approve(ctx context.Context, id string, overrideCity, overrideCountry *string) (ApproveResult, error) {
	if err := s.ready(); err != nil {
		return ApproveResult{}, err
	}
	if s.embedder == nil || s.index == nil {
		return ApproveResult{}, fmt.Errorf("review publisher is not configured")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return ApproveResult{}, ErrValidation
	}

	tip, err := s.store.GetPending(ctx, id)
	if err != nil {
		return ApproveResult{}, err
	}

	city := resolveAttribute(overrideCity, tip.City)
	country := resolveAttribute(overrideCountry, tip.Country)

	vector, err := s.embedder.Embed(ctx, tip.Text)
	if err != nil {
		return ApproveResult{}, fmt.Errorf("embed approved tip: %w", err)
	}

	meta := model.VectorMetadata{
		City:    valueOrUnknown(city),
		Country: valueOrUnknown(country),
		Text:    tip.Text,
	}
	if err := s.index.Upsert(ctx, tip.ID, vector, meta); err != nil {
		return ApproveResult{}, fmt.Errorf("index approved tip: %w", err)
	}

	if err := s.store.Promote(ctx, model.ApprovedTip{
		ID:         tip.ID,
		Text:       tip.Text,
		City:       city,
		Country:    country,
		Confidence: tip.Confidence,
		CreatedAt:  tip.CreatedAt,
	}); err != nil {
		return ApproveResult{}, err
	}

	s.record("approve")
	s.logger.Info("queued tip approved",
		zap.String("tip_id", tip.ID),
		zap.String("city", meta.City),
		zap.String("country", meta.Country),
	)
	return ApproveResult{ID: tip.ID, City: city, Country: country}, nil
}

func (s *Service) Reject(ctx context.Context, id string) (RejectResult, error) {
	if err := s.ready(); err != nil {
		return RejectResult{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return RejectResult{}, ErrValidation
	}

	tip, err := s.store.GetPending(ctx, id)
	if err != nil {
		return RejectResult{}, err
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveRejected(ctx, tip); err != nil {
			s.logger.Warn("archive rejected tip failed", zap.String("tip_id", tip.ID), zap.Error(err))
		}
	}

	if err := s.store.DeletePending(ctx, tip.ID); err != nil {
		return RejectResult{}, err
	}

	s.record("reject")
	s.logger.Info("queued tip rejected", zap.String("tip_id", tip.ID))
	return RejectResult{ID: tip.ID}, nil
}

func (s *Service) State(ctx context.Context, id string) (enums.TipState, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrValidation
	}
	return s.store.StateOf(ctx, id)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgrepo.ErrTipNotFound)
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("review store is nil")
	}
	return nil
}

func (s *Service) record(decision string) {
	if s.observer != nil {
		s.observer.RecordReview(decision)
	}
}

func resolveAttribute(override, stored *string) *string {
	if override != nil {
		if trimmed := strings.TrimSpace(*override); trimmed != "" {
			return &trimmed
		}
	}
	return stored
}

func valueOrUnknown(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return model.UnknownLocation
	}
	return *v
}
