package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
	"github.com/google/uuid"
)

var ErrEmptyExternalID = errors.New("external id is required")

// Repository is the persistence contract for stored entities.
// FindByExternalID returns (nil, nil) when nothing is stored under the id.
type Repository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.StoredEntity, error)
	Upsert(ctx context.Context, entity *models.StoredEntity) (string, error)
	SetClassifications(ctx context.Context, entityID string, c models.Classifications) error
	Remove(ctx context.Context, externalID string) (bool, error)
}

// EventPublisher receives entity change notifications. Publishing is best-effort.
type EventPublisher interface {
	PublishEntity(ctx context.Context, event models.EntityEvent) error
}

// Result is the outcome of one reconcile call
type Result struct {
	Action   models.Action
	StoredID string
}

// Reconciler decides insert/update/skip for one normalized record and applies it
type Reconciler struct {
	repo      Repository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(repo Repository, publisher EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile looks the record up by its exact external id and inserts, updates or skips it.
// An existing entity is skipped only when force is false and its stored timestamp is at or
// after the incoming one; a missing or unreadable timestamp on either side means update.
func (r *Reconciler) Reconcile(ctx context.Context, externalID string, rec *models.NormalizedRecord, force bool) (res Result, err error) {
	start := time.Now()
	defer func() {
		action := string(res.Action)
		if err != nil {
			action = "error"
		}
		metrics.ReconcileDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Result{}, ErrEmptyExternalID
	}

	l := r.logger.With("external_id", externalID)

	existing, err := r.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup %s: %w", externalID, err)
	}

	action := Decide(existing, rec.Meta.LastUpdated, force)
	if action == models.ActionSkip {
		l.Debug("Record unchanged, skipping", "stored", existing.LastModified, "incoming", rec.Meta.LastUpdated)
		return Result{Action: models.ActionSkip, StoredID: existing.ID}, nil
	}

	now := r.now().UTC()
	entity := &models.StoredEntity{
		ExternalID:   externalID,
		LastModified: NormalizeTimestamp(rec.Meta.LastUpdated),
		Record:       *rec,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		entity.ID = existing.ID
		entity.CreatedAt = existing.CreatedAt
	} else {
		entity.ID = uuid.NewString()
	}

	id, err := r.repo.Upsert(ctx, entity)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", action, externalID, err)
	}

	// classification failures never undo the committed write
	if err := r.repo.SetClassifications(ctx, id, rec.Classifications()); err != nil {
		metrics.ClassificationFailures.Inc()
		l.Error("Failed to assign classifications", "entity_id", id, "error", err)
	}

	r.publish(ctx, l, models.EntityEvent{
		EventID:     uuid.NewString(),
		Action:      action,
		EntityID:    id,
		ExternalID:  externalID,
		LastUpdated: entity.LastModified,
		ImageCount:  len(rec.Media.Images),
		Timestamp:   now,
	})

	l.Debug("Record reconciled", "action", action, "entity_id", id)
	return Result{Action: action, StoredID: id}, nil
}

// Remove deletes the stored entity for externalID. It reports whether one existed.
func (r *Reconciler) Remove(ctx context.Context, externalID string) (bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return false, ErrEmptyExternalID
	}
	removed, err := r.repo.Remove(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", externalID, err)
	}
	if removed {
		r.logger.Info("Stored entity removed", "external_id", externalID)
	}
	return removed, nil
}

// Decide applies the insert/update/skip rule without touching the store
func Decide(existing *models.StoredEntity, incoming string, force bool) models.Action {
	if existing == nil {
		return models.ActionInsert
	}
	if force {
		return models.ActionUpdate
	}
	stored, okStored := ParseTimestamp(existing.LastModified)
	next, okNext := ParseTimestamp(incoming)
	if !okStored || !okNext {
		return models.ActionUpdate
	}
	if !next.After(stored) {
		return models.ActionSkip
	}
	return models.ActionUpdate
}

func (r *Reconciler) publish(ctx context.Context, l *slog.Logger, event models.EntityEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishEntity(ctx, event); err != nil {
		l.Warn("Entity event not published", "event_id", event.EventID, "error", err)
	}
}
