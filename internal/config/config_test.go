package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg := Load()
		assert.Equal(t, "property", cfg.FeedItemElement)
		assert.Equal(t, 50, cfg.BatchSize)
		assert.Equal(t, 100*time.Millisecond, cfg.BatchPause)
		assert.Equal(t, 5*time.Minute, cfg.LockTTL)
		assert.Equal(t, 10*time.Minute, cfg.LockStaleAfter)
		assert.Equal(t, 100, cfg.HistoryLimit)
		assert.Equal(t, 3, cfg.ImageMaxAttempts)
		assert.InDelta(t, 5.0, cfg.ImageRatePerSec, 1e-9)
		assert.Equal(t, "9091", cfg.MetricsPort)
		assert.Equal(t, "9092", cfg.ImageMetricsPort)
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		t.Setenv("FEED_URL", "https://feeds.example.com/a.xml")
		t.Setenv("SYNC_BATCH_SIZE", "25")
		t.Setenv("SYNC_INTERVAL_MIN", "15")
		cfg := Load()
		assert.Equal(t, "https://feeds.example.com/a.xml", cfg.FeedURL)
		assert.Equal(t, 25, cfg.BatchSize)
		assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	})

	t.Run("should read fractional image rates", func(t *testing.T) {
		t.Setenv("IMAGE_RATE_PER_SEC", "0.5")
		assert.InDelta(t, 0.5, Load().ImageRatePerSec, 1e-9)
	})

	t.Run("should clamp batch sizes", func(t *testing.T) {
		t.Setenv("SYNC_BATCH_SIZE", "5000")
		t.Setenv("IMAGE_BATCH_SIZE", "0")
		cfg := Load()
		assert.Equal(t, MaxBatchSize, cfg.BatchSize)
		assert.Equal(t, MinImageBatchSize, cfg.ImageBatchSize)
	})

	t.Run("should ignore unparseable numbers", func(t *testing.T) {
		t.Setenv("HISTORY_LIMIT", "lots")
		assert.Equal(t, 100, Load().HistoryLimit)
	})
}
