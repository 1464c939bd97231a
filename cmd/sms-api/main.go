package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/api"
	"github.com/example/bdsms/internal/bootstrap"
	"github.com/example/bdsms/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	log, logCloser, err := bootstrap.Logger(cfg, "sms-api")
	if err != nil {
		fail("logger init", err)
	}
	defer logCloser.Close()

	infra, err := bootstrap.Open(ctx, cfg, log, "bdsms-api")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open queue connections")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close queue connections")
		}
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(infra.Registry(), log)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           api.NewRouter(handler, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("addr", srv.Addr).Str("default_queue", cfg.Queue.Connection).Msg("sms api listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("sms api init failed")
}
