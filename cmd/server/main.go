package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanilaP/social-network-backend/api"
	"github.com/DanilaP/social-network-backend/api/validator"
	"github.com/DanilaP/social-network-backend/auth"
	"github.com/DanilaP/social-network-backend/config"
	"github.com/DanilaP/social-network-backend/postgres"
	"github.com/DanilaP/social-network-backend/realtime"
	"github.com/DanilaP/social-network-backend/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("Server stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.Connect(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer pg.Close()

	cache, err := redis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer cache.Close()

	registry := realtime.NewRegistry()
	a := &api.API{
		Logger:   logger,
		Users:    pg,
		Dialogs:  pg,
		Posts:    pg,
		Groups:   pg,
		Cache:    cache,
		Identity: auth.NewTokens(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthTokenTTL),
		Hasher:   auth.NewHasher(),
		Push:     &realtime.Dispatcher{Logger: logger, Registry: registry},
		Registry: registry,
		Val:      validator.New(),
		TokenTTL: cfg.AuthTokenTTL,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: a,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
