package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wenmoon/mascot/internal/app"
	"github.com/wenmoon/mascot/internal/config"
	"github.com/wenmoon/mascot/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := observability.NewLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	defer logCloser.Close()

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.TracesFile, version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init failed")
	}

	built, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("build failed")
	}
	logger.Info().
		Str("llm", built.Providers.LLM).
		Str("tts", built.Providers.TTS).
		Str("sentiment", built.Providers.Sentiment).
		Str("transcripts", built.Transcripts.Mode()).
		Str("stage", string(built.Clock.Stage())).
		Msg("providers resolved")

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Str("version", version).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	if err := built.Cleanup(); err != nil {
		logger.Warn().Err(err).Msg("cleanup failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("trace flush failed")
	}

	logger.Info().Msg("shutdown complete")
}
