package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"formsmith/internal/app"
	"formsmith/internal/engine/delivery"
	"formsmith/internal/engine/exports"
	"formsmith/internal/pkg/logger"
	"formsmith/internal/platform/config"
	"formsmith/internal/workers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Start(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer rt.Close()

	dispatcher := delivery.NewDispatcher(rt.DB, cfg.Delivery, app.Mailer(cfg.Email))
	// Sweeping needs no permission checks.
	exportSvc := exports.NewService(rt.DB, nil, cfg.Exports)

	log.Info().
		Dur("poll_interval", cfg.Delivery.PollInterval).
		Dur("sweep_interval", cfg.Exports.SweepInterval).
		Msg("workers starting")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		workers.RunDeliveries(ctx, dispatcher, cfg.Delivery.PollInterval)
	}()
	go func() {
		defer wg.Done()
		workers.RunSweeps(ctx, exportSvc, cfg.Exports.SweepInterval)
	}()
	wg.Wait()

	log.Info().Msg("workers stopped")
}
