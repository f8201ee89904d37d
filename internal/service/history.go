package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/store"
)

const (
	historyKey          = "sync:history"
	DefaultHistoryLimit = 100
)

// History is the append-only run log, newest first, capped at limit entries
type History struct {
	store store.Store
	limit int
}

func NewHistory(s store.Store, limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{store: s, limit: limit}
}

// Append records a report, evicting the oldest entries past the limit
func (h *History) Append(ctx context.Context, report models.SyncRunReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := h.store.PushCapped(ctx, historyKey, b, h.limit); err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	return nil
}

// List returns up to n reports, newest first. n <= 0 returns the whole history.
func (h *History) List(ctx context.Context, n int) ([]models.SyncRunReport, error) {
	raw, err := h.store.Range(ctx, historyKey, n)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]models.SyncRunReport, 0, len(raw))
	for _, b := range raw {
		var r models.SyncRunReport
		if err := json.Unmarshal(b, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
