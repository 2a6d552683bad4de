package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/keweikao/sales-ai-automation-V2/internal/config"
	"github.com/keweikao/sales-ai-automation-V2/internal/pipeline"
	"github.com/keweikao/sales-ai-automation-V2/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	cfg, err := config.Loader{File: os.Getenv("TRANSCRIBE_CONFIG")}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise pipeline", "error", err)
		os.Exit(1)
	}
	logger.Info("starting server",
		"listen_addr", cfg.ListenAddr,
		"model_size", cfg.ModelSize,
		"device", cfg.Device,
		"workers", cfg.MaxWorkers,
	)

	// Warm-up is best effort: a failure is logged and the process serves
	// anyway, since the first real request surfaces the same failure with
	// full context.
	if err := pipe.Warmup(ctx); err != nil {
		logger.Warn("warm-up failed, serving anyway", "error", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(pipe, logger).Router(),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful stop timed out, forcing close", "error", err)
			_ = srv.Close()
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server terminated with error", "error", err)
		os.Exit(1)
	}

	if snapshot := pipe.Recorder().Snapshot(); snapshot.TotalRuns > 0 {
		logger.Info("telemetry totals",
			"total_runs", snapshot.TotalRuns,
			"total_chunks", snapshot.TotalChunks,
			"total_chunk_failures", snapshot.TotalChunkFailures,
			"total_segments", snapshot.TotalSegments,
			"total_audio_seconds", snapshot.TotalAudioSeconds,
		)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
