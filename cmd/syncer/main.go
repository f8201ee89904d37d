package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/app"
	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/pkg/infra"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg, "syncer")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FeedURL == "" {
		logger.Error("CRITICAL: FEED_URL environment variable is missing")
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Fatal error during startup", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	go startObservabilityServer(ctx, cfg.MetricsPort, a, logger)

	janitorDone := make(chan struct{})
	go runMaintenance(ctx, a, cfg.MaintenanceInterval, janitorDone)

	logger.Info("Feed syncer started",
		"pid", os.Getpid(),
		"feed_url", cfg.FeedURL,
		"interval", cfg.SyncInterval,
		"batch_size", cfg.BatchSize,
	)

	runMainLoop(ctx, a, cfg)
	<-janitorDone
	logger.Info("Shutdown complete")
}

// runMainLoop triggers an automatic sync at startup and then every SyncInterval.
// Failed runs are retried sooner, on a backoff capped by the interval.
func runMainLoop(ctx context.Context, a *app.App, cfg *config.Config) {
	backoff := infra.NewBackoff(30*time.Second, cfg.SyncInterval, 2.0)

	for {
		out := a.Orchestrator.AutoSync(ctx)

		wait := cfg.SyncInterval
		switch {
		case out.AlreadyRunning:
			slog.Info("Previous run still holds the lock, waiting for next cycle")
		case out.Report != nil && out.Report.Status == models.RunError:
			wait = min(backoff.Next(), cfg.SyncInterval)
			slog.Error("Automatic sync failed", "retry_in", wait, "error", out.Report.Error)
		default:
			backoff.Reset()
		}

		select {
		case <-time.After(wait):
			continue
		case <-ctx.Done():
			slog.Info("Shutting down main loop...")
			return
		}
	}
}

// runMaintenance clears locks left behind by crashed runs
func runMaintenance(ctx context.Context, a *app.App, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Debug("Janitor: inspecting sync lock")

			cleared, err := a.Locker.ClearIfStale(ctx, a.Config.LockStaleAfter)
			if err != nil {
				slog.Error("Janitor: failed to inspect sync lock", "error", err)
				continue
			}
			if cleared {
				metrics.StaleLocksCleared.Inc()
				slog.Warn("Janitor: rescued abandoned sync lock")
			}

		case <-ctx.Done():
			slog.Info("Janitor: stopping maintenance goroutine")
			return
		}
	}
}

func startObservabilityServer(ctx context.Context, port string, a *app.App, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Repo.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("POSTGRES UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNCER ALIVE"))
	})

	mux.HandleFunc("/reports", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		reports, err := a.History.List(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reports)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
