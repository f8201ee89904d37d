// Package app wires the sync engine from configuration. Every binary builds the same
// graph and only differs in which loops it runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-feed-sync/internal/broker"
	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/Guizzs26/go-feed-sync/internal/db"
	"github.com/Guizzs26/go-feed-sync/internal/fetcher"
	"github.com/Guizzs26/go-feed-sync/internal/lock"
	"github.com/Guizzs26/go-feed-sync/internal/processor"
	"github.com/Guizzs26/go-feed-sync/internal/service"
	"github.com/Guizzs26/go-feed-sync/internal/store"
)

const (
	storePrefix = "feedsync:"
	lockKey     = "sync:lock"
)

// ErrNoSharedStore is returned by RequireSharedStore when REDIS_URL is unset
var ErrNoSharedStore = errors.New("REDIS_URL is required: lock, history and image queue must be shared between processes")

// RequireSharedStore fails unless the configuration points at Redis. Only cmd/syncer may
// run on the in-process store.
func RequireSharedStore(cfg *config.Config) error {
	if cfg.RedisURL == "" {
		return ErrNoSharedStore
	}
	return nil
}

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        store.Store
	Repo         *db.PostgresRepository
	Publisher    *broker.Publisher
	Fetcher      *fetcher.Client
	Locker       *lock.Locker
	History      *service.History
	Reconciler   *processor.Reconciler
	Images       *service.ImageManager
	Orchestrator *service.Orchestrator

	closers []func()
}

// New connects to Postgres (running migrations), the key-value store and, when
// configured, RabbitMQ, then builds the services on top
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	repo, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL, storePrefix, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = rs
		a.closers = append(a.closers, func() { rs.Close() })
	} else {
		logger.Warn("REDIS_URL not set: running single-process, feedctl and imageworker cannot attach")
		a.Store = store.NewMemoryStore()
	}

	// interfaces below must stay nil, not hold a nil *Publisher
	var (
		entityEvents processor.EventPublisher
		runEvents    service.RunPublisher
		wakeEvents   service.WakePublisher
	)
	if cfg.RabbitMQURL != "" {
		a.Publisher = broker.NewPublisher(cfg.RabbitMQURL, logger)
		a.closers = append(a.closers, func() { a.Publisher.Close() })
		entityEvents, runEvents, wakeEvents = a.Publisher, a.Publisher, a.Publisher
	} else {
		logger.Info("RABBITMQ_URL not set: events disabled")
	}

	a.Fetcher = fetcher.New(fetcher.DefaultBreaker, logger).LimitImages(cfg.ImageRatePerSec, 2)
	a.Locker = lock.NewLocker(a.Store, lockKey, cfg.LockTTL, logger)
	a.History = service.NewHistory(a.Store, cfg.HistoryLimit)
	a.Reconciler = processor.NewReconciler(repo, entityEvents, logger)
	a.Images = service.NewImageManager(a.Store, repo, a.Fetcher, wakeEvents, service.ImageOptions{
		BatchSize:   cfg.ImageBatchSize,
		Timeout:     cfg.ImageTimeout,
		MaxBytes:    cfg.ImageMaxBytes,
		MaxAttempts: cfg.ImageMaxAttempts,
		TimeBudget:  cfg.ImageTimeBudget,
	}, logger)
	a.Orchestrator = service.NewOrchestrator(a.Fetcher, a.Reconciler, a.Locker, a.History, a.Images, runEvents, service.Options{
		FeedURL:     cfg.FeedURL,
		ItemElement: cfg.FeedItemElement,
		FeedTimeout: cfg.FeedTimeout,
		BatchSize:   cfg.BatchSize,
		BatchPause:  cfg.BatchPause,
		StaleAfter:  cfg.LockStaleAfter,
	}, logger)

	return a, nil
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
