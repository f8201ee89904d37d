package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts finished orchestrator runs by trigger (manual/auto) and outcome (success/error/locked)
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_runs_total",
		Help: "Total number of sync runs by type and status",
	}, []string{"type", "status"})

	// SyncRunDuration measures a run from orchestrator entry to report
	SyncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_run_duration_seconds",
		Help:    "Duration of a full sync run in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type"})

	// ItemsProcessed tracks per-item outcomes: insert, update, skip, error
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_items_processed_total",
		Help: "Total number of feed items processed by outcome",
	}, []string{"action"})

	// BatchDuration measures how long one reconciliation batch takes
	// Use this to spot persistence slowdowns
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedsync_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of items in each batch
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedsync_batch_size",
		Help:    "Number of items processed per batch",
		Buckets: []float64{1, 10, 25, 50, 100, 500, 1000},
	})

	// ReconcileDuration is the latency of one reconcile call by resulting action
	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_reconcile_duration_seconds",
		Help:    "Time taken to reconcile one record against the store",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"action"})

	// ClassificationFailures counts taxonomy assignments that failed after a committed write
	ClassificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_classification_failures_total",
		Help: "Total number of failed classification assignments",
	})

	// LockContention counts runs that found the advisory lock held
	LockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_lock_contention_total",
		Help: "Number of runs that found the sync lock held",
	}, []string{"type"})

	// StaleLocksCleared counts locks force-cleared by automatic runs or the janitor
	StaleLocksCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_stale_locks_cleared_total",
		Help: "Number of stale sync locks force-cleared",
	})

	// FetchDuration measures outbound HTTP calls (feed, image head, image get)
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_fetch_duration_seconds",
		Help:    "Duration of outbound HTTP requests",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind", "status"})

	// CircuitState mirrors the breaker state per host: 0 closed, 1 half-open, 2 open
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_circuit_state",
		Help: "Circuit breaker state per breaker name",
	}, []string{"name"})

	// BrokerReconnections counts how many times a service had to restore the RabbitMQ link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_rabbitmq_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus provides a binary 0/1 signal for the broker link
	// 1 = Healthy, 0 = Unhealthy (connection to RabbitMQ is down)
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_broker_healthy",
		Help: "Current health status of the broker link (1 for healthy, 0 for unhealthy)",
	})
)
