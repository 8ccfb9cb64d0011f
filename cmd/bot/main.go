package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/app/botapp"
	"github.com/nicklasc86/travelbot/internal/config"
	"github.com/nicklasc86/travelbot/internal/infra/logger"
)

func main() {
	if _, err := config.LoadDotEnv(".", ".."); err != nil {
		panic(err)
	}

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := botapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create bot app", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatal("bot app failed", zap.Error(err))
	}
}
