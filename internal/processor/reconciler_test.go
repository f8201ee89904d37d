package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entities    map[string]*models.StoredEntity
	terms       map[string]models.Classifications
	upserts     int
	classifyErr error
	upsertErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entities: make(map[string]*models.StoredEntity),
		terms:    make(map[string]models.Classifications),
	}
}

func (f *fakeRepo) FindByExternalID(_ context.Context, externalID string) (*models.StoredEntity, error) {
	e, ok := f.entities[externalID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) Upsert(_ context.Context, e *models.StoredEntity) (string, error) {
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.upserts++
	cp := *e
	f.entities[e.ExternalID] = &cp
	return e.ID, nil
}

func (f *fakeRepo) SetClassifications(_ context.Context, entityID string, c models.Classifications) error {
	if f.classifyErr != nil {
		return f.classifyErr
	}
	f.terms[entityID] = c
	return nil
}

func (f *fakeRepo) Remove(_ context.Context, externalID string) (bool, error) {
	_, ok := f.entities[externalID]
	delete(f.entities, externalID)
	return ok, nil
}

type fakePublisher struct {
	events []models.EntityEvent
	err    error
}

func (p *fakePublisher) PublishEntity(_ context.Context, e models.EntityEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id, lastUpdated string) *models.NormalizedRecord {
	return &models.NormalizedRecord{
		Meta:     models.Meta{ExternalID: id, LastUpdated: lastUpdated},
		Property: models.Property{Title: "Unit " + id, Types: []string{"Office"}},
		Location: models.Location{Town: "London"},
	}
}

func TestDecide(t *testing.T) {
	stored := &models.StoredEntity{ID: "1", LastModified: "2024-01-02"}

	t.Run("should insert when nothing is stored", func(t *testing.T) {
		assert.Equal(t, models.ActionInsert, Decide(nil, "2024-01-01", false))
	})

	t.Run("should skip an older incoming record", func(t *testing.T) {
		assert.Equal(t, models.ActionSkip, Decide(stored, "2024-01-01", false))
	})

	t.Run("should skip an equal timestamp", func(t *testing.T) {
		assert.Equal(t, models.ActionSkip, Decide(stored, "2024-01-02T00:00:00Z", false))
	})

	t.Run("should update a newer incoming record", func(t *testing.T) {
		assert.Equal(t, models.ActionUpdate, Decide(stored, "2024-01-03", false))
	})

	t.Run("should update when forced", func(t *testing.T) {
		assert.Equal(t, models.ActionUpdate, Decide(stored, "2024-01-01", true))
	})

	t.Run("should update when either timestamp is missing or unreadable", func(t *testing.T) {
		assert.Equal(t, models.ActionUpdate, Decide(stored, "", false))
		assert.Equal(t, models.ActionUpdate, Decide(stored, "yesterday", false))
		assert.Equal(t, models.ActionUpdate, Decide(&models.StoredEntity{ID: "1"}, "2024-01-01", false))
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("should read the common layouts as utc", func(t *testing.T) {
		want := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)
		for _, s := range []string{"2024-01-02T10:30:00Z", "2024-01-02T11:30:00+01:00", "2024-01-02 10:30:00", "02/01/2024 10:30"} {
			got, ok := ParseTimestamp(s)
			require.True(t, ok, s)
			assert.True(t, want.Equal(got), s)
		}
	})

	t.Run("should read unix seconds", func(t *testing.T) {
		got, ok := ParseTimestamp("1704189600")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), got)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, ok := ParseTimestamp("not a date")
		assert.False(t, ok)
		_, ok = ParseTimestamp("2024")
		assert.False(t, ok)
	})

	t.Run("should normalize to rfc3339", func(t *testing.T) {
		assert.Equal(t, "2024-01-02T00:00:00Z", NormalizeTimestamp("2024-01-02"))
		assert.Equal(t, "sometime", NormalizeTimestamp(" sometime "))
	})
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert a new record and assign classifications", func(t *testing.T) {
		repo := newFakeRepo()
		pub := &fakePublisher{}
		r := NewReconciler(repo, pub, discardLogger())

		res, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		require.NoError(t, err)
		assert.Equal(t, models.ActionInsert, res.Action)
		assert.NotEmpty(t, res.StoredID)

		stored := repo.entities["P-1"]
		require.NotNil(t, stored)
		assert.Equal(t, "2024-01-01T00:00:00Z", stored.LastModified)
		assert.Equal(t, "London", repo.terms[res.StoredID].Location)

		require.Len(t, pub.events, 1)
		assert.Equal(t, models.ActionInsert, pub.events[0].Action)
	})

	t.Run("should skip an unchanged record and keep the stored id", func(t *testing.T) {
		repo := newFakeRepo()
		r := NewReconciler(repo, nil, discardLogger())

		first, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-02"), false)
		require.NoError(t, err)

		res, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		require.NoError(t, err)
		assert.Equal(t, models.ActionSkip, res.Action)
		assert.Equal(t, first.StoredID, res.StoredID)
		assert.Equal(t, 1, repo.upserts)
	})

	t.Run("should update in place keeping id and creation time", func(t *testing.T) {
		repo := newFakeRepo()
		r := NewReconciler(repo, nil, discardLogger())
		created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		r.now = func() time.Time { return created }

		first, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		require.NoError(t, err)

		r.now = func() time.Time { return created.Add(48 * time.Hour) }
		res, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-02"), false)
		require.NoError(t, err)
		assert.Equal(t, models.ActionUpdate, res.Action)
		assert.Equal(t, first.StoredID, res.StoredID)

		stored := repo.entities["P-1"]
		assert.Equal(t, created, stored.CreatedAt)
		assert.Equal(t, created.Add(48*time.Hour), stored.UpdatedAt)
	})

	t.Run("should force an update of an older record", func(t *testing.T) {
		repo := newFakeRepo()
		r := NewReconciler(repo, nil, discardLogger())
		_, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-02"), false)
		require.NoError(t, err)

		res, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), true)
		require.NoError(t, err)
		assert.Equal(t, models.ActionUpdate, res.Action)
		assert.Equal(t, "2024-01-01T00:00:00Z", repo.entities["P-1"].LastModified)
	})

	t.Run("should not fail when classification assignment fails", func(t *testing.T) {
		repo := newFakeRepo()
		repo.classifyErr = errors.New("terms table locked")
		r := NewReconciler(repo, nil, discardLogger())

		res, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		require.NoError(t, err)
		assert.Equal(t, models.ActionInsert, res.Action)
		assert.Contains(t, repo.entities, "P-1")
	})

	t.Run("should not fail when the event cannot be published", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		r := NewReconciler(newFakeRepo(), pub, discardLogger())

		_, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		assert.NoError(t, err)
	})

	t.Run("should return write failures", func(t *testing.T) {
		repo := newFakeRepo()
		repo.upsertErr = errors.New("connection reset")
		r := NewReconciler(repo, nil, discardLogger())

		_, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
		assert.ErrorIs(t, err, repo.upsertErr)
	})

	t.Run("should reject a blank external id", func(t *testing.T) {
		r := NewReconciler(newFakeRepo(), nil, discardLogger())
		_, err := r.Reconcile(ctx, "  ", record("", ""), false)
		assert.ErrorIs(t, err, ErrEmptyExternalID)
	})
}

func TestReconciler_Remove(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	r := NewReconciler(repo, nil, discardLogger())
	_, err := r.Reconcile(ctx, "P-1", record("P-1", "2024-01-01"), false)
	require.NoError(t, err)

	t.Run("should remove a stored entity", func(t *testing.T) {
		removed, err := r.Remove(ctx, "P-1")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.NotContains(t, repo.entities, "P-1")
	})

	t.Run("should report a missing entity", func(t *testing.T) {
		removed, err := r.Remove(ctx, "P-404")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}
