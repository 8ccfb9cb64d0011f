// Package ingest routes a submitted tip to publication or to the review queue.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/pkg/validate"
	"github.com/nicklasc86/travelbot/internal/services/extraction"
	"github.com/nicklasc86/travelbot/internal/services/screening"
)

const (
	DefaultConfidenceThreshold = 0.75
	DefaultUpstreamTimeout     = 20 * time.Second
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, id string, values []float32, meta model.VectorMetadata) error
}

type Store interface {
	InsertPending(ctx context.Context, tip model.Tip) error
	InsertApproved(ctx context.Context, tip model.ApprovedTip) error
}

// QueueNotifier is told about every queued tip. Its failures never fail an ingestion.
type QueueNotifier interface {
	NotifyQueued(ctx context.Context, tip model.Tip) error
}

type Observer interface {
	RecordIngest(status, reason string)
	RecordUpstream(stage string, took time.Duration, err error)
}

type Dependencies struct {
	Classifier screening.Classifier
	Policy     screening.Policy
	Extractor  extraction.Extractor
	Embedder   Embedder
	Index      VectorIndex
	Store      Store
	Notifier   QueueNotifier
	Observer   Observer
	Logger     *zap.Logger
}

type Config struct {
	ConfidenceThreshold float64
	UpstreamTimeout     time.Duration
}

type Result struct {
	Status     enums.IngestStatus  `json:"status"`
	ID         string              `json:"id"`
	Reason     *enums.ReviewReason `json:"reason,omitempty"`
	Attributes *model.Location     `json:"attributes,omitempty"`
}

type Service struct {
	classifier screening.Classifier
	policy     screening.Policy
	extractor  extraction.Extractor
	embedder   Embedder
	index      VectorIndex
	store      Store
	notifier   QueueNotifier
	observer   Observer
	logger     *zap.Logger
	cfg        Config
	newID      func() string
	now        func() time.Time
}

func NewService(deps Dependencies, cfg Config) (*Service, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("vector index is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("tip store is required")
	}

	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be within [0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Service{
		classifier: deps.Classifier,
		policy:     deps.Policy,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		index:      deps.Index,
		store:      deps.Store,
		notifier:   deps.Notifier,
		observer:   observer,
		logger:     logger,
		cfg:        cfg,
		newID:      func() string { return "tip-" + uuid.NewString() },
		now:        time.Now,
	}, nil
}

// Ingest runs screen, extract, route and publish strictly in that order. Each step runs only
// when the previous one allows it. Every returned error other than ErrValidation is *UpstreamError.
func (s *Service) Ingest(ctx context.Context, text string) (Result, error) {
	if !validate.Required(text) {
		return Result{}, ErrValidation
	}

	id := s.newID()
	createdAt := s.now().UTC()
	log := s.logger.With(zap.String("tip_id", id))

	var verdict screening.Result
	if err := s.call(ctx, StageScreen, func(ctx context.Context) error {
		var err error
		verdict, err = s.classifier.Classify(ctx, text)
		return err
	}); err != nil {
		return Result{}, err
	}

	if s.policy.Flags(verdict) {
		reason := enums.ReviewReasonFlaggedByModeration
		tip := model.Tip{
			ID:               id,
			Text:             text,
			ModerationResult: verdict.Raw,
			Reason:           &reason,
			CreatedAt:        createdAt,
		}
		if err := s.queue(ctx, tip); err != nil {
			return Result{}, err
		}
		log.Info("tip queued for review",
			zap.String("reason", string(reason)),
			zap.Strings("categories", s.policy.TriggeredCategories(verdict)),
		)
		return Result{Status: enums.IngestStatusReviewNeeded, ID: id, Reason: &reason}, nil
	}

	var loc model.Location
	if err := s.call(ctx, StageExtract, func(ctx context.Context) error {
		var err error
		loc, err = s.extractor.Extract(ctx, text)
		return err
	}); err != nil {
		return Result{}, err
	}

	if loc.Confidence < s.cfg.ConfidenceThreshold {
		reason := enums.ReviewReasonLowMetadataConfidence
		tip := model.Tip{
			ID:         id,
			Text:       text,
			City:       ptr(loc.City),
			Country:    ptr(loc.Country),
			Confidence: ptr(loc.Confidence),
			Reason:     &reason,
			CreatedAt:  createdAt,
		}
		if err := s.queue(ctx, tip); err != nil {
			return Result{}, err
		}
		log.Info("tip queued for review",
			zap.String("reason", string(reason)),
			zap.Float64("confidence", loc.Confidence),
		)
		return Result{Status: enums.IngestStatusReviewNeeded, ID: id, Reason: &reason, Attributes: &loc}, nil
	}

	var vector []float32
	if err := s.call(ctx, StageEmbed, func(ctx context.Context) error {
		var err error
		vector, err = s.embedder.Embed(ctx, text)
		return err
	}); err != nil {
		return Result{}, err
	}

	meta := model.VectorMetadata{City: loc.City, Country: loc.Country, Text: text}
	if err := s.call(ctx, StageIndex, func(ctx context.Context) error {
		return s.index.Upsert(ctx, id, vector, meta)
	}); err != nil {
		return Result{}, err
	}

	// An index write followed by a failed approved-table write is left unrecovered.
	if err := s.call(ctx, StageStore, func(ctx context.Context) error {
		return s.store.InsertApproved(ctx, model.ApprovedTip{
			ID:         id,
			Text:       text,
			City:       ptr(loc.City),
			Country:    ptr(loc.Country),
			Confidence: ptr(loc.Confidence),
			CreatedAt:  createdAt,
		})
	}); err != nil {
		log.Error("tip indexed but approved record failed", zap.Error(err))
		return Result{}, err
	}

	s.observer.RecordIngest(string(enums.IngestStatusApproved), "")
	log.Info("tip published", zap.String("city", loc.City), zap.String("country", loc.Country))
	return Result{Status: enums.IngestStatusApproved, ID: id, Attributes: &loc}, nil
}

func (s *Service) queue(ctx context.Context, tip model.Tip) error {
	if err := s.call(ctx, StageStore, func(ctx context.Context) error {
		return s.store.InsertPending(ctx, tip)
	}); err != nil {
		return err
	}

	s.observer.RecordIngest(string(enums.IngestStatusReviewNeeded), string(*tip.Reason))

	if s.notifier != nil {
		if err := s.notifier.NotifyQueued(ctx, tip); err != nil {
			s.logger.Warn("queued tip notification failed", zap.String("tip_id", tip.ID), zap.Error(err))
		}
	}
	return nil
}

// call bounds one external call by the upstream timeout and wraps its failure with the stage.
func (s *Service) call(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	started := s.now()
	err := fn(callCtx)
	s.observer.RecordUpstream(string(stage), s.now().Sub(started), err)
	if err != nil {
		return &UpstreamError{Stage: stage, Err: err}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

type noopObserver struct{}

func (noopObserver) RecordIngest(string, string)                 {}
func (noopObserver) RecordUpstream(string, time.Duration, error) {}
