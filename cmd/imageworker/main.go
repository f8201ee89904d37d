package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/app"
	"github.com/Guizzs26/go-feed-sync/internal/broker"
	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/pkg/infra"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg, "imageworker")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RequireSharedStore(cfg); err != nil {
		logger.Error("CRITICAL: REDIS_URL environment variable is missing", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Fatal error during startup", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	go startObservabilityServer(cfg.ImageMetricsPort, logger)

	// one pending signal is enough: a run drains everything queued so far
	wake := make(chan struct{}, 1)
	signalWake := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	if cfg.RabbitMQURL != "" {
		go listenForWakeups(ctx, cfg.RabbitMQURL, signalWake, logger)
	}

	logger.Info("Image worker started",
		"batch_size", cfg.ImageBatchSize,
		"poll_interval", cfg.ImagePollInterval,
		"time_budget", cfg.ImageTimeBudget,
	)

	ticker := time.NewTicker(cfg.ImagePollInterval)
	defer ticker.Stop()
	signalWake()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Image worker stopped")
			return
		case <-ticker.C:
		case <-wake:
		}

		if _, err := a.Images.RunContinuous(ctx); err != nil {
			logger.Error("Image queue run failed", "error", err)
		}
	}
}

// listenForWakeups keeps a consumer on the images.queued routing key, reconnecting with backoff
func listenForWakeups(ctx context.Context, url string, signalWake func(), logger *slog.Logger) {
	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	handler := func(_ context.Context, event models.ImagesQueuedEvent) {
		logger.Debug("Wake-up received", "entity_id", event.EntityID, "added", event.Added)
		signalWake()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		consumer, err := broker.NewImageWakeConsumer(url, handler, logger)
		if err != nil {
			logger.Error("RabbitMQ connection failed, retrying...", "attempt", connBackoff.Attempts()+1, "error", err)
			if _, err := connBackoff.Wait(ctx); err != nil {
				return
			}
			continue
		}

		connBackoff.Reset()
		if err := consumer.Listen(ctx); err != nil {
			logger.Error("Consumer connection lost", "error", err)
		}
		consumer.Close()
	}
}

func startObservabilityServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("IMAGE WORKER ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
