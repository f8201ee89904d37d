package app

import (
	"testing"

	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRequireSharedStore(t *testing.T) {
	t.Run("should reject a configuration without redis", func(t *testing.T) {
		err := RequireSharedStore(&config.Config{})
		assert.ErrorIs(t, err, ErrNoSharedStore)
	})

	t.Run("should accept a redis url", func(t *testing.T) {
		assert.NoError(t, RequireSharedStore(&config.Config{RedisURL: "redis://localhost:6379/0"}))
	})
}
