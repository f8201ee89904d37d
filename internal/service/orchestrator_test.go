package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/fetcher"
	"github.com/Guizzs26/go-feed-sync/internal/lock"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/processor"
	"github.com/Guizzs26/go-feed-sync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	feedURL = "https://feeds.example.com/properties.xml"
	lockKey = "sync:lock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildFeed(n int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><feed><properties>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<property><id>P-%d</id><title>Unit %d</title><last_updated>2024-01-01</last_updated>`+
			`<images><image>https://cdn.example.com/P-%d.jpg</image></images></property>`, i, i, i)
	}
	b.WriteString(`</properties></feed>`)
	return []byte(b.String())
}

type fakeFeed struct {
	body     []byte
	err      error
	urls     []string
	timeouts []time.Duration
}

func (f *fakeFeed) Fetch(_ context.Context, url string, timeout time.Duration) (*fetcher.Response, error) {
	f.urls = append(f.urls, url)
	f.timeouts = append(f.timeouts, timeout)
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Response{Status: 200, Body: f.body, ContentType: "application/xml"}, nil
}

type fakeReconciler struct {
	seen    map[string]bool
	failOn  map[string]error
	panicOn string
	calls   []string
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{seen: make(map[string]bool), failOn: make(map[string]error)}
}

func (r *fakeReconciler) Reconcile(_ context.Context, externalID string, _ *models.NormalizedRecord, force bool) (processor.Result, error) {
	r.calls = append(r.calls, externalID)
	if externalID == r.panicOn {
		panic("boom")
	}
	if err := r.failOn[externalID]; err != nil {
		return processor.Result{}, err
	}
	id := "id-" + externalID
	if r.seen[externalID] {
		if force {
			return processor.Result{Action: models.ActionUpdate, StoredID: id}, nil
		}
		return processor.Result{Action: models.ActionSkip, StoredID: id}, nil
	}
	r.seen[externalID] = true
	return processor.Result{Action: models.ActionInsert, StoredID: id}, nil
}

type fakeEnqueuer struct {
	calls map[string][]string
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, entityID string, urls []string) (int, error) {
	if e.calls == nil {
		e.calls = make(map[string][]string)
	}
	e.calls[entityID] = urls
	return len(urls), nil
}

type fakeRunPublisher struct {
	reports []models.SyncRunReport
}

func (p *fakeRunPublisher) PublishRun(_ context.Context, r models.SyncRunReport) error {
	p.reports = append(p.reports, r)
	return nil
}

type harness struct {
	orch      *Orchestrator
	feed      *fakeFeed
	rec       *fakeReconciler
	images    *fakeEnqueuer
	publisher *fakeRunPublisher
	store     *store.MemoryStore
	locker    *lock.Locker
	history   *History
	pauses    int
}

func newHarness(t *testing.T, body []byte, batchSize int) *harness {
	t.Helper()
	h := &harness{
		feed:      &fakeFeed{body: body},
		rec:       newFakeReconciler(),
		images:    &fakeEnqueuer{},
		publisher: &fakeRunPublisher{},
		store:     store.NewMemoryStore(),
	}
	h.locker = lock.NewLocker(h.store, lockKey, 5*time.Minute, discardLogger())
	h.history = NewHistory(h.store, DefaultHistoryLimit)
	h.orch = NewOrchestrator(h.feed, h.rec, h.locker, h.history, h.images, h.publisher, Options{
		FeedURL:     feedURL,
		ItemElement: "property",
		FeedTimeout: time.Second,
		BatchSize:   batchSize,
		BatchPause:  100 * time.Millisecond,
		StaleAfter:  10 * time.Minute,
	}, discardLogger())
	h.orch.pause = func(context.Context, time.Duration) { h.pauses++ }
	return h
}

// holdLock takes the sync lock as if acquired age ago by another process
func (h *harness) holdLock(t *testing.T, age time.Duration) {
	t.Helper()
	past := lock.NewLocker(h.store, lockKey, 5*time.Minute, discardLogger(),
		lock.WithClock(func() time.Time { return time.Now().Add(-age) }))
	_, err := past.Acquire(context.Background(), models.RunManual)
	require.NoError(t, err)
}

func TestOrchestrator_Batches(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep processing after a failing item", func(t *testing.T) {
		h := newHarness(t, buildFeed(50), 20)
		h.rec.failOn["P-25"] = errors.New("constraint violation")

		out := h.orch.ManualSync(ctx, ManualOptions{})
		require.NotNil(t, out.Report)
		r := out.Report

		assert.Equal(t, models.RunSuccess, r.Status)
		assert.Equal(t, 50, r.TotalItems)
		assert.Equal(t, 49, r.Added)
		assert.Equal(t, 1, r.Skipped)
		assert.Equal(t, 0, r.Removed)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, "P-25", r.Errors[0].ExternalID)
		assert.Equal(t, 24, r.Errors[0].Index)
		assert.Contains(t, h.rec.calls, "P-50")
		assert.Len(t, h.rec.calls, 50)
	})

	t.Run("should pause between batches only", func(t *testing.T) {
		h := newHarness(t, buildFeed(50), 20)
		h.orch.ManualSync(ctx, ManualOptions{})
		assert.Equal(t, 2, h.pauses)
	})

	t.Run("should recover a panicking item", func(t *testing.T) {
		h := newHarness(t, buildFeed(5), 50)
		h.rec.panicOn = "P-3"

		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		require.NotNil(t, r)
		assert.Equal(t, 4, r.Added)
		assert.Equal(t, 1, r.Skipped)
		require.Len(t, r.Errors, 1)
		assert.Contains(t, r.Errors[0].Message, "panic")
	})

	t.Run("should skip unchanged records on the next run and update them when forced", func(t *testing.T) {
		h := newHarness(t, buildFeed(3), 50)
		h.orch.ManualSync(ctx, ManualOptions{})

		again := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Equal(t, 0, again.Added)
		assert.Equal(t, 3, again.Skipped)

		forced := h.orch.ManualSync(ctx, ManualOptions{Force: true}).Report
		assert.Equal(t, 3, forced.Updated)
	})

	t.Run("should enqueue images only for written records", func(t *testing.T) {
		h := newHarness(t, buildFeed(2), 50)
		h.orch.ManualSync(ctx, ManualOptions{})
		assert.Equal(t, []string{"https://cdn.example.com/P-1.jpg"}, h.images.calls["id-P-1"])

		h.images.calls = nil
		h.orch.ManualSync(ctx, ManualOptions{})
		assert.Empty(t, h.images.calls)
	})

	t.Run("should cap the error details", func(t *testing.T) {
		h := newHarness(t, buildFeed(60), 100)
		for i := 1; i <= 60; i++ {
			h.rec.failOn[fmt.Sprintf("P-%d", i)] = errors.New("down")
		}
		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Equal(t, 60, r.Skipped)
		assert.Len(t, r.Errors, MaxReportErrors)
	})

	t.Run("should count items without an id as skipped", func(t *testing.T) {
		body := []byte(`<feed><property><title>No id</title></property><property><id>P-1</id></property></feed>`)
		h := newHarness(t, body, 50)
		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Equal(t, 2, r.TotalItems)
		assert.Equal(t, 1, r.Added)
		assert.Equal(t, 1, r.Skipped)
	})

	t.Run("should stop between batches when cancelled", func(t *testing.T) {
		h := newHarness(t, buildFeed(30), 10)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		h.orch.pause = func(context.Context, time.Duration) { cancel() }

		r := h.orch.ManualSync(cctx, ManualOptions{}).Report
		require.NotNil(t, r)
		assert.Equal(t, models.RunError, r.Status)
		assert.Equal(t, 10, r.Added)
		assert.Contains(t, r.Error, "interrupted")

		info, err := h.locker.Inspect(ctx)
		require.NoError(t, err)
		assert.Nil(t, info)
	})
}

func TestOrchestrator_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("should release the lock after a run", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.orch.AutoSync(ctx)
		info, err := h.locker.Inspect(ctx)
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("should clear a stale lock for an automatic run", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.holdLock(t, 11*time.Minute)

		out := h.orch.AutoSync(ctx)
		assert.False(t, out.AlreadyRunning)
		require.NotNil(t, out.Report)
		assert.Equal(t, models.RunSuccess, out.Report.Status)
		assert.Equal(t, models.RunAuto, out.Report.Type)
	})

	t.Run("should reject a manual run without clearing a stale lock", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.holdLock(t, 11*time.Minute)

		out := h.orch.ManualSync(ctx, ManualOptions{})
		assert.True(t, out.AlreadyRunning)
		assert.Nil(t, out.Report)
		require.NotNil(t, out.Holder)
		assert.Equal(t, models.RunManual, out.Holder.RunType)

		info, err := h.locker.Inspect(ctx)
		require.NoError(t, err)
		assert.NotNil(t, info)
		assert.Empty(t, h.feed.urls)
	})

	t.Run("should skip an automatic run while a fresh lock is held", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.holdLock(t, time.Minute)

		out := h.orch.AutoSync(ctx)
		assert.True(t, out.AlreadyRunning)
		assert.Nil(t, out.Report)

		reports, err := h.history.List(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})
}

func TestOrchestrator_FeedErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("should report an unparseable feed", func(t *testing.T) {
		h := newHarness(t, []byte(`<feed><property>`), 50)
		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Equal(t, models.RunError, r.Status)
		assert.Contains(t, r.Error, ErrFeedUnparseable.Error())
		assert.Zero(t, r.TotalItems)
	})

	t.Run("should report a feed without items", func(t *testing.T) {
		h := newHarness(t, []byte(`<feed><properties/></feed>`), 50)
		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Equal(t, models.RunError, r.Status)
		assert.Contains(t, r.Error, ErrFeedEmpty.Error())
	})

	t.Run("should report an http failure", func(t *testing.T) {
		h := newHarness(t, nil, 50)
		h.feed.err = &fetcher.StatusError{Code: 503, URL: feedURL}
		r := h.orch.AutoSync(ctx).Report
		assert.Equal(t, models.RunError, r.Status)
		assert.Contains(t, r.Error, "HTTP 503")
	})

	t.Run("should report a missing feed url", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.orch.opts.FeedURL = ""
		r := h.orch.ManualSync(ctx, ManualOptions{}).Report
		assert.Contains(t, r.Error, ErrNoFeedURL.Error())
	})

	t.Run("should use the url given to a manual run", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.orch.ManualSync(ctx, ManualOptions{FeedURL: "https://other.example.com/feed.xml"})
		assert.Equal(t, []string{"https://other.example.com/feed.xml"}, h.feed.urls)
	})
}

func TestOrchestrator_Reports(t *testing.T) {
	ctx := context.Background()

	t.Run("should append every finished run to history and publish it", func(t *testing.T) {
		h := newHarness(t, buildFeed(2), 50)
		first := h.orch.ManualSync(ctx, ManualOptions{}).Report
		h.orch.AutoSync(ctx)

		reports, err := h.history.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, models.RunAuto, reports[0].Type)
		assert.Equal(t, first.RunID, reports[1].RunID)
		assert.Len(t, h.publisher.reports, 2)
	})

	t.Run("should cap history", func(t *testing.T) {
		h := newHarness(t, buildFeed(1), 50)
		h.history = NewHistory(h.store, 3)
		h.orch.history = h.history
		for i := 0; i < 5; i++ {
			h.orch.AutoSync(ctx)
		}
		reports, err := h.history.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, reports, 3)

		limited, err := h.history.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestOrchestrator_TestFeedConnectivity(t *testing.T) {
	ctx := context.Background()

	t.Run("should count items without persisting", func(t *testing.T) {
		h := newHarness(t, buildFeed(4), 50)
		res := h.orch.TestFeedConnectivity(ctx, "")
		assert.True(t, res.OK)
		assert.Equal(t, 4, res.ItemCount)
		assert.Equal(t, 200, res.Status)
		assert.Equal(t, feedURL, res.URL)
		assert.Empty(t, h.rec.calls)
	})

	t.Run("should describe a failure", func(t *testing.T) {
		h := newHarness(t, nil, 50)
		h.feed.err = errors.New("dial tcp: connection refused")
		res := h.orch.TestFeedConnectivity(ctx, "https://down.example.com/feed.xml")
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "connection refused")
	})
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	t.Run("should fill zero options with defaults", func(t *testing.T) {
		feed := &fakeFeed{body: buildFeed(1)}
		orch := NewOrchestrator(feed, nil, nil, nil, nil, nil, Options{FeedURL: feedURL}, discardLogger())

		assert.Equal(t, DefaultBatchSize, orch.opts.BatchSize)
		assert.Equal(t, DefaultStaleAfter, orch.opts.StaleAfter)
		assert.Equal(t, "property", orch.opts.ItemElement)

		res := orch.TestFeedConnectivity(context.Background(), "")
		assert.True(t, res.OK)
		assert.Equal(t, []time.Duration{DefaultFeedTimeout}, feed.timeouts)
	})
}
