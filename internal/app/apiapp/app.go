package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/config"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	openaiinfra "github.com/nicklasc86/travelbot/internal/infra/openai"
	pineconeinfra "github.com/nicklasc86/travelbot/internal/infra/pinecone"
	s3infra "github.com/nicklasc86/travelbot/internal/infra/s3"
	tginfra "github.com/nicklasc86/travelbot/internal/infra/telegram"
	"github.com/nicklasc86/travelbot/internal/observability/metrics"
	pgrepo "github.com/nicklasc86/travelbot/internal/repo/postgres"
	redrepo "github.com/nicklasc86/travelbot/internal/repo/redis"
	"github.com/nicklasc86/travelbot/internal/services/adminauth"
	archivesvc "github.com/nicklasc86/travelbot/internal/services/archive"
	auditsvc "github.com/nicklasc86/travelbot/internal/services/audit"
	ingestsvc "github.com/nicklasc86/travelbot/internal/services/ingest"
	ratesvc "github.com/nicklasc86/travelbot/internal/services/rate"
	reviewsvc "github.com/nicklasc86/travelbot/internal/services/review"
	"github.com/nicklasc86/travelbot/internal/services/screening"
	searchsvc "github.com/nicklasc86/travelbot/internal/services/search"
	"github.com/nicklasc86/travelbot/internal/transport/http/handlers"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	metrics    *metrics.Metrics
	httpRouter http.Handler
}

// VectorIndex is the similarity store shared by publishing and search.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, values []float32, meta model.VectorMetadata) error
	Query(ctx context.Context, values []float32, filter model.VectorFilter, topK int) ([]model.VectorMatch, error)
}

// New wires the API. Missing Postgres, S3, OpenAI or vector index settings degrade the
// routes that need them to 503 instead of failing startup.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, m)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
		if err := pgrepo.Migrate(ctx, pool, pgrepo.MigrateOptions{
			WithVectors:     strings.EqualFold(cfg.VectorIndex.Provider, config.VectorProviderPgvector),
			VectorDimension: cfg.VectorIndex.Dimension,
		}); err != nil {
			log.Warn("postgres migration failed", zap.Error(err))
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateLimiter := ratesvc.NewLimiter(
		redrepo.NewRateRepo(redisClient),
		cfg.RateLimit.IngestPerMinute,
		cfg.RateLimit.IngestPer10Seconds,
	)
	adminAuth := adminauth.NewService(adminauth.Config{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
		JWTSecret:    cfg.Admin.JWTSecret,
		TokenTTL:     cfg.Admin.TokenTTL,
		TOTPSecret:   cfg.Admin.TOTPSecret,
	}, redrepo.NewAdminSessionRepo(redisClient))
	if !adminAuth.IsConfigured() {
		log.Warn("admin credentials are not configured, admin routes disabled")
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, rejected tips will not be archived", zap.Error(err))
	} else {
		s3Client = c
	}

	health := handlers.NewHealthHandler()
	health.AttachCheck("postgres", handlers.PingFunc(func(ctx context.Context) error {
		if pool == nil {
			return errors.New("postgres is not connected")
		}
		return pool.Ping(ctx)
	}))
	health.AttachCheck("redis", handlers.PingFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))

	deps := Dependencies{
		RateLimiter: rateLimiter,
		AdminAuth:   adminAuth,
		Health:      health,
		Metrics:     m.Handler(),
		Logger:      log,
	}

	var ai *openaiinfra.Client
	if c, err := openaiinfra.NewClient(openaiinfra.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Timeout:        cfg.OpenAI.Timeout,
		MaxRetries:     cfg.OpenAI.MaxRetries,
	}); err != nil {
		log.Warn("openai client disabled, ingestion and search unavailable", zap.Error(err))
	} else {
		ai = c
	}

	index, err := NewVectorIndex(cfg.VectorIndex, pool)
	if err != nil {
		log.Warn("vector index disabled, ingestion and search unavailable", zap.Error(err))
	}

	if ai != nil && index != nil {
		searcher := searchsvc.NewService(ai, ai, index, cfg.Pipeline.SearchTopK)
		searcher.AttachCache(redrepo.NewCacheRepo(redisClient), cfg.OpenAI.EmbeddingModel, cfg.Pipeline.SearchCacheTTL, log)
		deps.Searcher = searcher
	}

	if pool != nil {
		reviewRepo := pgrepo.NewReviewRepo(pool)
		deps.Audit = auditsvc.NewService(pgrepo.NewEventRepo(pool))

		reviewDeps := reviewsvc.Dependencies{
			Store:    reviewRepo,
			Observer: m,
			Logger:   log,
		}
		if ai != nil && index != nil {
			reviewDeps.Embedder = ai
			reviewDeps.Index = index
		}
		if s3Client != nil {
			reviewDeps.Archiver = archivesvc.NewS3Archive(s3Client, cfg.S3.Bucket)
		}
		deps.Reviewer = reviewsvc.NewService(reviewDeps)

		if ai != nil && index != nil {
			ingestDeps := ingestsvc.Dependencies{
				Classifier: ai,
				Policy:     screening.NewPolicy(cfg.Pipeline.SafetyThresholds),
				Extractor:  ai,
				Embedder:   ai,
				Index:      index,
				Store:      reviewRepo,
				Observer:   m,
				Logger:     log,
			}
			if notifier := newQueueNotifier(cfg.Telegram, log); notifier != nil {
				ingestDeps.Notifier = notifier
			}
			ingestService, err := ingestsvc.NewService(ingestDeps, ingestsvc.Config{
				ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
				UpstreamTimeout:     cfg.Pipeline.UpstreamTimeout,
			})
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("init ingest service: %w", err)
			}
			deps.Ingester = ingestService
		}
	}

	RegisterRoutes(r, deps)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		metrics:    m,
		httpRouter: r,
	}, nil
}

// NewVectorIndex picks the configured similarity store.
func NewVectorIndex(cfg config.VectorIndexConfig, pool *pgxpool.Pool) (VectorIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.VectorProviderPgvector:
		if pool == nil {
			return nil, fmt.Errorf("pgvector index requires postgres")
		}
		return pgrepo.NewVectorRepo(pool, cfg.Namespace), nil
	case config.VectorProviderPinecone, "":
		index, err := pineconeinfra.NewIndex(pineconeinfra.Config{
			APIKey:     cfg.Pinecone.APIKey,
			Host:       cfg.Pinecone.Host,
			Namespace:  cfg.Namespace,
			Timeout:    cfg.Pinecone.Timeout,
			MaxRetries: cfg.Pinecone.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Provider)
	}
}

func newQueueNotifier(cfg config.TelegramConfig, log *zap.Logger) *tginfra.Notifier {
	if strings.TrimSpace(cfg.BotToken) == "" || cfg.ChatID == 0 {
		return nil
	}
	bot, err := tginfra.NewBot(cfg.BotToken)
	if err != nil {
		log.Warn("telegram notifier disabled", zap.Error(err))
		return nil
	}
	return tginfra.NewNotifier(bot, cfg.ChatID)
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
