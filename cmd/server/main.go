package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"quizlive/auth"
	"quizlive/config"
	"quizlive/crypto"
	"quizlive/logger"
	"quizlive/migrations"
	"quizlive/session"
	"quizlive/storage"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	l := logger.Setup(cfg.LogLevel, cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		l.Fatal().Err(err).Msg("migrations failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	// Dependencies
	pgRepo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		l.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pgRepo.Close()

	tokenManager := crypto.NewJWTManager(cfg.JWTKey, 7*24*time.Hour)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, l)

	recorder := session.NewActivityRecorder(pgRepo, 1024, cfg.StoreTimeout, l)
	go recorder.Run(ctx)

	coordinator := session.NewCoordinator(ctx, pgRepo, pgRepo, recorder, session.Config{
		GracePeriod:  cfg.GracePeriod,
		StoreTimeout: cfg.StoreTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, l)

	sessionHandler := session.NewSessionHandler(
		coordinator, pgRepo, pgRepo, pgRepo,
		session.NewInviteCodeGenerator(),
		cfg.TimerSecret, cfg.AllowedOrigins, l,
	)

	r := CreateServer(cfg.AllowedOrigins, pgRepo, RegisterTimerRoutes(sessionHandler))
	RegisterSessionRoutes(r, sessionHandler, authMiddleware.RequireAuthMiddleware(2*time.Second))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server failed")
		}
	}()
	l.Info().Str("port", cfg.Port).Msg("server started")

	<-ctx.Done()
	l.Info().Msg("shutdown signal received, closing sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("http shutdown")
	}

	coordinator.Wait()
	l.Info().Msg("shutting down now")
}
