package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alkime/ebooks/internal/config"
	"github.com/alkime/ebooks/internal/content"
	"github.com/alkime/ebooks/internal/logger"
	"github.com/alkime/ebooks/internal/server"
	"github.com/alkime/ebooks/internal/tracer"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging
	appLogger := logger.SetupLogger(cfg)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	appLogger.Info("Server stopped")
}

func run(cfg *config.Config, appLogger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		Enabled:    cfg.OTelEnabled,
		Endpoint:   cfg.OTelEndpoint,
		SampleRate: cfg.OTelSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			appLogger.Warn("Failed to flush traces", "error", err)
		}
	}()

	// Log startup information
	appLogger.Info("Starting ebooks server",
		"env", cfg.Env,
		"port", cfg.Port,
		"tracing", cfg.OTelEnabled,
	)

	provider := content.NewProvider(
		content.NewWriter(cfg.AnthropicAPIKey, content.WithTextModel(cfg.TextModel)),
		content.NewIllustrator(cfg.OpenAIAPIKey, content.WithImageModel(cfg.ImageModel)),
	)

	return server.Run(ctx, server.New(cfg, appLogger, provider))
}
