package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/pkg/validate"
	"github.com/nicklasc86/travelbot/internal/services/extraction"
)

const (
	DefaultTopK = 3
	maxTopK     = 20
)

var ErrValidation = errors.New("validation error")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Query(ctx context.Context, values []float32, filter model.VectorFilter, topK int) ([]model.VectorMatch, error)
}

// VectorCache holds query embeddings between searches.
type VectorCache interface {
	GetVector(ctx context.Context, key string) ([]float32, bool, error)
	SetVector(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

type Result struct {
	Location model.Location      `json:"location"`
	Matches  []model.VectorMatch `json:"matches"`
}

// Service retrieves published tips near a free-text question. It never generates answers.
type Service struct {
	extractor   extraction.Extractor
	embedder    Embedder
	index       VectorIndex
	defaultTopK int

	cache      VectorCache
	cacheScope string
	cacheTTL   time.Duration
	logger     *zap.Logger
}

func NewService(extractor extraction.Extractor, embedder Embedder, index VectorIndex, defaultTopK int) *Service {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Service{
		extractor:   extractor,
		embedder:    embedder,
		index:       index,
		defaultTopK: min(defaultTopK, maxTopK),
		logger:      zap.NewNop(),
	}
}

// AttachCache enables embedding reuse. scope separates entries of different embedding models.
func (s *Service) AttachCache(cache VectorCache, scope string, ttl time.Duration, logger *zap.Logger) {
	if cache == nil || ttl <= 0 {
		return
	}
	s.cache = cache
	s.cacheScope = scope
	s.cacheTTL = ttl
	if logger != nil {
		s.logger = logger
	}
}

// Query narrows by the location found in the question, skipping attributes the extractor could not name.
func (s *Service) Query(ctx context.Context, query string, topK int) (Result, error) {
	if s.extractor == nil || s.embedder == nil || s.index == nil {
		return Result{}, fmt.Errorf("search is not configured")
	}

	if !validate.Required(query) {
		return Result{}, ErrValidation
	}
	query = strings.TrimSpace(query)
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > maxTopK {
		return Result{}, ErrValidation
	}

	loc, err := s.extractor.Extract(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("extract query location: %w", err)
	}

	vector, err := s.embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	filter := model.VectorFilter{}
	if model.IsKnown(loc.City) {
		filter.City = loc.City
	}
	if model.IsKnown(loc.Country) {
		filter.Country = loc.Country
	}

	matches, err := s.index.Query(ctx, vector, filter, topK)
	if err != nil {
		return Result{}, fmt.Errorf("query vector index: %w", err)
	}
	if matches == nil {
		matches = []model.VectorMatch{}
	}

	return Result{Location: loc, Matches: matches}, nil
}

// embed consults the cache first. Cache failures fall through to the embedder.
func (s *Service) embed(ctx context.Context, query string) ([]float32, error) {
	if s.cache == nil {
		return s.embedder.Embed(ctx, query)
	}

	key := s.cacheKey(query)
	if vector, ok, err := s.cache.GetVector(ctx, key); err != nil {
		s.logger.Warn("read query embedding cache failed", zap.Error(err))
	} else if ok {
		return vector, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetVector(ctx, key, vector, s.cacheTTL); err != nil {
		s.logger.Warn("write query embedding cache failed", zap.Error(err))
	}
	return vector, nil
}

func (s *Service) cacheKey(query string) string {
	sum := sha256.Sum256([]byte(s.cacheScope + "\x00" + query))
	return hex.EncodeToString(sum[:])
}
