package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/agent"
	"github.com/micheletedeschi/mtconnect-agent/internal/config"
	"github.com/micheletedeschi/mtconnect-agent/internal/logging"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting mtconnect-agent",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("adapters", len(cfg.Adapters)),
		zap.Bool("audit_enabled", cfg.Database.Configured()),
		zap.Bool("eventstream_enabled", cfg.RedisAddr != ""),
		zap.Int("webhook_subscribers", len(cfg.WebhookURLs)),
	)

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble agent", zap.Error(err))
	}

	if err := a.LoadDevicesFile(); err != nil {
		logger.Fatal("failed to load devices file", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := a.Stop(context.Background()); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("mtconnect-agent stopped")
}
