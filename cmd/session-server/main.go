package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/cache"
	"github.com/SAP-F-2025/assessment-session/internal/config"
	"github.com/SAP-F-2025/assessment-session/internal/evaluation"
	"github.com/SAP-F-2025/assessment-session/internal/events"
	"github.com/SAP-F-2025/assessment-session/internal/handlers"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"github.com/SAP-F-2025/assessment-session/internal/repositories/postgres"
	"github.com/SAP-F-2025/assessment-session/internal/services"
	"github.com/SAP-F-2025/assessment-session/internal/session"
	"github.com/SAP-F-2025/assessment-session/internal/utils"
	"github.com/SAP-F-2025/assessment-session/internal/validator"
	"github.com/SAP-F-2025/assessment-session/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.NewLogger("development").LogError(err, "Failed to load configuration")
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Environment)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.LogError(err, "Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}

	redisClient, err := pkg.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	assignments := repositories.NewCachedAssignmentRepository(
		postgres.NewAssignmentPostgreSQL(db),
		cache.NewRedisCache(redisClient, logger.Slog()),
		cfg.AssignmentCacheTTL,
		logger.Slog(),
	)
	// Cached definitions may predate the migration that just ran
	if err := assignments.InvalidateAll(ctx); err != nil {
		logger.LogError(err, "Failed to flush cached assignments")
	}
	repo := repositories.NewRepository(assignments, postgres.NewAttemptPostgreSQL(db))

	var evaluator session.Evaluator = evaluation.NoopEvaluator{}
	if cfg.Evaluator.URL != "" {
		evaluator = evaluation.NewHTTPEvaluator(cfg.Evaluator.URL, cfg.Evaluator.Timeout, logger.Slog())
	}

	publisher, err := cfg.Events.CreateEventPublisher(logger.Slog())
	if err != nil {
		logger.LogError(err, "Failed to create event publisher, falling back to mock")
		publisher = events.NewMockEventPublisher(logger.Slog())
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.LogError(err, "Failed to close event publisher")
		}
	}()

	sessionService := services.NewSessionService(
		repo,
		evaluator,
		publisher,
		validator.New(),
		services.NewServiceLogger(logger.Slog(), services.LogConfig{
			Service:     "assessment-session",
			Component:   "session",
			EnableDebug: !cfg.IsProduction(),
		}),
		services.SessionSettings{
			DefaultTimeLimitMinutes: cfg.Session.DefaultTimeLimitMinutes,
			TickInterval:            cfg.Session.TickInterval,
			SubmitTimeout:           cfg.Session.SubmitTimeout,
			ResultRetention:         cfg.Session.ResultRetention,
			EvictionInterval:        cfg.Session.EvictionInterval,
		},
	)
	defer sessionService.Shutdown()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewHandlerManager(sessionService, logger).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting session server", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down session server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
