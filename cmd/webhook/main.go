package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/example/channel-bridge/internal/channel"
	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/store"
	"github.com/example/channel-bridge/internal/transport"
	"github.com/example/channel-bridge/internal/webhook"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("webhook")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	st, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open message store")
	}
	defer closeStore(context.Background())

	client := &transport.Client{
		BaseURL:             cfg.GraphBaseURL,
		Timeout:             cfg.HTTPTimeout,
		ReadRetryMaxElapsed: cfg.ReadRetryMaxElapsed,
	}
	server := &webhook.Server{
		Registry: channel.RegistryFromConfig(cfg, client, st, logger),
		Verify: map[message.Channel]webhook.Verification{
			message.ChannelWhatsApp:  {VerifyToken: cfg.WhatsApp.VerifyToken, AppSecret: cfg.WhatsApp.AppSecret},
			message.ChannelInstagram: {VerifyToken: cfg.Instagram.VerifyToken, AppSecret: cfg.Instagram.AppSecret},
		},
		Logger: logger,
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("webhook service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("webhook server failed")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
