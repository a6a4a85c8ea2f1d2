package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"formsmith/internal/api"
	"formsmith/internal/api/handlers"
	"formsmith/internal/api/middleware"
	"formsmith/internal/app"
	"formsmith/internal/engine/assistant"
	"formsmith/internal/engine/delivery"
	"formsmith/internal/engine/exports"
	"formsmith/internal/engine/forms"
	"formsmith/internal/engine/history"
	"formsmith/internal/engine/identity"
	"formsmith/internal/engine/permissions"
	"formsmith/internal/pkg/logger"
	"formsmith/internal/platform/auth"
	"formsmith/internal/platform/config"
	"formsmith/internal/platform/repositories"
)

func main() {
	// .env is optional; real environment variables win.
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
	db := rt.DB

	// Permissions
	orgRepo := repositories.NewOrganizationRepository(db)
	memberRepo := repositories.NewMembershipRepository(db)
	resolver, err := permissions.NewResolver(orgRepo, memberRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build permission resolver")
	}

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	formsSvc := forms.NewService(db, resolver, rt.Publisher)
	dispatcher := delivery.NewDispatcher(db, cfg.Delivery, app.Mailer(cfg.Email))
	deliverySvc := delivery.NewService(db, resolver, dispatcher)
	exportSvc := exports.NewService(db, resolver, cfg.Exports)
	// No model ships with formsmith; /ai-stream answers 503 until one is wired.
	assistantSvc := assistant.NewService(db, resolver, formsSvc, nil)

	var verifier *identity.Verifier
	if cfg.Identity.WebhookSecret != "" {
		verifier, err = identity.NewVerifier(cfg.Identity.WebhookSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid identity webhook secret")
		}
	} else {
		log.Warn().Msg("identity.webhook_secret not set, /clerk/webhook disabled")
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer rateLimiter.Stop()

	deps := &api.Dependencies{
		HealthHandler:     handlers.NewHealthHandler(db),
		FormHandler:       handlers.NewFormHandler(formsSvc),
		SubmissionHandler: handlers.NewSubmissionHandler(formsSvc),
		HistoryHandler: handlers.NewHistoryHandler(
			history.NewReader(db, resolver, repositories.NewUserRepository(db)),
			history.NewRestorer(db, resolver, rt.Publisher),
		),
		DeliveryHandler:  handlers.NewDeliveryHandler(deliverySvc),
		ExportHandler:    handlers.NewExportHandler(exportSvc),
		IdentityHandler:  handlers.NewIdentityHandler(verifier, identity.NewSyncer(db)),
		AssistantHandler: handlers.NewAssistantHandler(assistantSvc),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokenSvc),
		BusinessScope:    middleware.NewBusinessScope(resolver),
		RateLimiter:      rateLimiter,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      middleware.RequestLogger(middleware.CORS(cfg.CORS)(router)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
