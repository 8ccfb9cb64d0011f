package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/app/apiapp"
	"github.com/nicklasc86/travelbot/internal/config"
	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	openaiinfra "github.com/nicklasc86/travelbot/internal/infra/openai"
	s3infra "github.com/nicklasc86/travelbot/internal/infra/s3"
	tginfra "github.com/nicklasc86/travelbot/internal/infra/telegram"
	"github.com/nicklasc86/travelbot/internal/jobs/cleanup"
	pgrepo "github.com/nicklasc86/travelbot/internal/repo/postgres"
	archivesvc "github.com/nicklasc86/travelbot/internal/services/archive"
	auditsvc "github.com/nicklasc86/travelbot/internal/services/audit"
	reviewsvc "github.com/nicklasc86/travelbot/internal/services/review"
)

const (
	queueEmptyInstruction = "Review queue is empty."
	queueCardLimit        = 10
)

type reviewer interface {
	ListPending(ctx context.Context) ([]model.Tip, error)
	Approve(ctx context.Context, id string, overrideCity, overrideCountry *string) (reviewsvc.ApproveResult, error)
	Reject(ctx context.Context, id string) (reviewsvc.RejectResult, error)
}

type auditRecorder interface {
	Record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) error
}

type botClient interface {
	Listen(ctx context.Context, handlers tginfra.Handlers) error
	SendText(ctx context.Context, chatID int64, text string) error
	SendReviewCard(ctx context.Context, chatID int64, text, tipID string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	ClearButtons(ctx context.Context, chatID int64, messageID int) error
}

type cleanupRunner interface {
	Loop(ctx context.Context, interval time.Duration)
}

// App is the moderator worker: it resolves review cards from Telegram and runs retention cleanup.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	postgres   *pgxpool.Pool
	bot        botClient
	review     reviewer
	audit      auditRecorder
	cleanupJob cleanupRunner
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}

	reviewRepo := pgrepo.NewReviewRepo(pool)
	eventRepo := pgrepo.NewEventRepo(pool)
	reviewDeps := reviewsvc.Dependencies{Store: reviewRepo, Logger: logger}

	cleanupJob := cleanup.New(eventRepo, logger)
	cleanupJob.SetEventRetention(cfg.Retention.Events)

	if s3Client, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		logger.Warn("s3 init failed, rejected tips will not be archived", zap.Error(err))
	} else {
		archive := archivesvc.NewS3Archive(s3Client, cfg.S3.Bucket)
		reviewDeps.Archiver = archive
		cleanupJob.AttachArchive(archive, cfg.Retention.Archive)
	}

	ai, aiErr := openaiinfra.NewClient(openaiinfra.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Timeout:        cfg.OpenAI.Timeout,
		MaxRetries:     cfg.OpenAI.MaxRetries,
	})
	index, indexErr := apiapp.NewVectorIndex(cfg.VectorIndex, pool)
	switch {
	case aiErr != nil:
		logger.Warn("openai client disabled, approvals from telegram unavailable", zap.Error(aiErr))
	case indexErr != nil:
		logger.Warn("vector index disabled, approvals from telegram unavailable", zap.Error(indexErr))
	default:
		reviewDeps.Embedder = ai
		reviewDeps.Index = index
	}

	app := &App{
		cfg:        cfg,
		logger:     logger,
		postgres:   pool,
		review:     reviewsvc.NewService(reviewDeps),
		audit:      auditsvc.NewService(eventRepo),
		cleanupJob: cleanupJob,
	}

	if strings.TrimSpace(cfg.Telegram.BotToken) != "" {
		bot, err := tginfra.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		app.bot = bot
		if cfg.Telegram.ChatID == 0 {
			logger.Warn("TELEGRAM_CHAT_ID is empty, moderator commands and buttons are refused")
		}
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is empty, moderator listener disabled")
	}

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	if a.cleanupJob != nil {
		go a.cleanupJob.Loop(ctx, a.cfg.Retention.Interval)
	}

	if a.bot == nil {
		<-ctx.Done()
		a.logger.Info("bot app stopped")
		return nil
	}

	err := a.bot.Listen(ctx, tginfra.Handlers{
		OnCommand:  a.handleCommand,
		OnCallback: a.handleCallback,
		OnError: func(err error) {
			a.logger.Warn("telegram update handling failed", zap.Error(err))
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("bot app stopped")
	return nil
}

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if a.bot == nil || !a.fromModeratorChat(update.ChatID) {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "queue":
		return a.sendQueue(ctx, update.ChatID)
	default:
		return nil
	}
}

// handleCallback resolves a review card. Review and delivery failures are reported to the
// moderator or logged; they never stop the listener.
func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	if a.bot == nil {
		return nil
	}
	if !a.fromModeratorChat(update.ChatID) {
		a.logger.Warn("review callback from foreign chat refused",
			zap.Int64("chat_id", update.ChatID), zap.Int64("user_id", update.UserID))
		a.answer(ctx, update.CallbackID, "Not allowed")
		return nil
	}

	action, tipID, ok := tginfra.ParseCallbackData(update.Data)
	if !ok {
		a.answer(ctx, update.CallbackID, "Unknown action")
		return nil
	}

	log := a.logger.With(zap.String("tip_id", tipID), zap.String("action", action), zap.Int64("moderator_id", update.UserID))
	moderator := "telegram:" + moderatorName(update)

	var reply string
	switch action {
	case tginfra.ActionApprove:
		res, err := a.review.Approve(ctx, tipID, nil, nil)
		if err != nil {
			a.answerFailure(ctx, update, log, err)
			return nil
		}
		a.record(ctx, tipID, enums.TipEventReviewApprove, map[string]any{
			"admin":   moderator,
			"city":    stringValue(res.City),
			"country": stringValue(res.Country),
		})
		reply = fmt.Sprintf("Approved %s (%s, %s).", tipID, defaultString(res.City), defaultString(res.Country))
	case tginfra.ActionReject:
		if _, err := a.review.Reject(ctx, tipID); err != nil {
			a.answerFailure(ctx, update, log, err)
			return nil
		}
		a.record(ctx, tipID, enums.TipEventReviewReject, map[string]any{"admin": moderator})
		reply = fmt.Sprintf("Rejected %s.", tipID)
	}

	// The review is applied at this point; delivery failures are only logged.
	log.Info("review card resolved")
	a.answer(ctx, update.CallbackID, "Done")
	if err := a.bot.ClearButtons(ctx, update.ChatID, update.MessageID); err != nil {
		log.Warn("clear review card buttons failed", zap.Error(err))
	}
	if err := a.bot.SendText(ctx, update.ChatID, reply); err != nil {
		log.Warn("send review confirmation failed", zap.Error(err))
	}
	return nil
}

func (a *App) answerFailure(ctx context.Context, update tginfra.CallbackUpdate, log *zap.Logger, err error) {
	if reviewsvc.IsNotFound(err) {
		if clearErr := a.bot.ClearButtons(ctx, update.ChatID, update.MessageID); clearErr != nil {
			log.Warn("clear review card buttons failed", zap.Error(clearErr))
		}
		a.answer(ctx, update.CallbackID, "Already resolved")
		return
	}
	log.Error("review from telegram failed", zap.Error(err))
	a.answer(ctx, update.CallbackID, "Failed, try again")
}

func (a *App) answer(ctx context.Context, callbackID, text string) {
	if err := a.bot.AnswerCallback(ctx, callbackID, text); err != nil {
		a.logger.Warn("answer telegram callback failed", zap.Error(err), zap.String("answer", text))
	}
}

func (a *App) sendQueue(ctx context.Context, chatID int64) error {
	tips, err := a.review.ListPending(ctx)
	if err != nil {
		a.logger.Error("list review queue failed", zap.Error(err))
		return a.bot.SendText(ctx, chatID, "Could not load the review queue.")
	}
	if len(tips) == 0 {
		return a.bot.SendText(ctx, chatID, queueEmptyInstruction)
	}

	shown := min(len(tips), queueCardLimit)
	if err := a.bot.SendText(ctx, chatID, fmt.Sprintf("%d tip(s) waiting, showing %d.", len(tips), shown)); err != nil {
		return fmt.Errorf("send queue summary: %w", err)
	}
	for _, tip := range tips[:shown] {
		if err := a.bot.SendReviewCard(ctx, chatID, tginfra.FormatReviewCard(tip), tip.ID); err != nil {
			return fmt.Errorf("send review card %s: %w", tip.ID, err)
		}
	}
	return nil
}

// fromModeratorChat fails closed: without a configured moderator chat nobody may act.
func (a *App) fromModeratorChat(chatID int64) bool {
	return a.cfg.Telegram.ChatID != 0 && a.cfg.Telegram.ChatID == chatID
}

func (a *App) record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, tipID, action, props); err != nil {
		a.logger.Warn("record tip event failed", zap.Error(err), zap.String("tip_id", tipID))
	}
}

func moderatorName(update tginfra.CallbackUpdate) string {
	if name := strings.TrimSpace(update.Username); name != "" {
		return name
	}
	return fmt.Sprintf("%d", update.UserID)
}

func defaultString(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "-"
	}
	return *value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}
