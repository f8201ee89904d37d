package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/fetcher"
	"github.com/Guizzs26/go-feed-sync/internal/lock"
	"github.com/Guizzs26/go-feed-sync/internal/mapper"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/normalizer"
	"github.com/Guizzs26/go-feed-sync/internal/processor"
	"github.com/Guizzs26/go-feed-sync/internal/values"
	"github.com/Guizzs26/go-feed-sync/internal/xmlfeed"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
	"github.com/google/uuid"
)

const (
	// MaxReportErrors caps the per-item error details kept in one report
	MaxReportErrors = 50

	DefaultBatchSize   = 50
	DefaultFeedTimeout = 60 * time.Second
	DefaultStaleAfter  = 10 * time.Minute
)

// FeedFetcher fetches the feed document
type FeedFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetcher.Response, error)
}

// RecordReconciler applies one normalized record to the store
type RecordReconciler interface {
	Reconcile(ctx context.Context, externalID string, rec *models.NormalizedRecord, force bool) (processor.Result, error)
}

// ImageEnqueuer queues image downloads for a stored entity
type ImageEnqueuer interface {
	Enqueue(ctx context.Context, entityID string, urls []string) (int, error)
}

// RunPublisher announces finished runs
type RunPublisher interface {
	PublishRun(ctx context.Context, report models.SyncRunReport) error
}

// Options are the orchestrator's fixed settings
type Options struct {
	FeedURL     string
	ItemElement string
	FeedTimeout time.Duration
	BatchSize   int
	BatchPause  time.Duration
	StaleAfter  time.Duration
}

// ManualOptions are the caller's choices for a manual run
type ManualOptions struct {
	Force   bool
	FeedURL string
}

// Outcome is the result of a sync entry point. AlreadyRunning runs carry no report.
type Outcome struct {
	Report         *models.SyncRunReport
	AlreadyRunning bool
	Holder         *lock.Info
}

// ConnectivityResult describes a fetch-and-parse check of a feed
type ConnectivityResult struct {
	OK        bool          `json:"ok"`
	URL       string        `json:"url"`
	Status    int           `json:"status,omitempty"`
	ItemCount int           `json:"item_count"`
	Bytes     int           `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Orchestrator runs feed syncs: lock, fetch, parse, batch, reconcile, report
type Orchestrator struct {
	fetcher    FeedFetcher
	reconciler RecordReconciler
	locker     *lock.Locker
	history    *History
	images     ImageEnqueuer
	publisher  RunPublisher
	mapper     *mapper.FieldMapper
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
	pause      func(ctx context.Context, d time.Duration)
}

// NewOrchestrator wires the sync engine. images and publisher may be nil.
func NewOrchestrator(
	f FeedFetcher,
	r RecordReconciler,
	locker *lock.Locker,
	history *History,
	images ImageEnqueuer,
	publisher RunPublisher,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = DefaultFeedTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.ItemElement == "" {
		opts.ItemElement = "property"
	}
	return &Orchestrator{
		fetcher:    f,
		reconciler: r,
		locker:     locker,
		history:    history,
		images:     images,
		publisher:  publisher,
		mapper:     mapper.NewFieldMapper(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		pause:      sleep,
	}
}

// AutoSync is the scheduled entry point. A lock older than the staleness threshold is
// cleared so a crashed run never blocks the schedule; a fresh lock means the run is skipped.
func (o *Orchestrator) AutoSync(ctx context.Context) Outcome {
	return o.run(ctx, models.RunAuto, false, o.opts.FeedURL)
}

// ManualSync is the operator entry point. It fails fast when any run holds the lock,
// whatever the lock's age.
func (o *Orchestrator) ManualSync(ctx context.Context, mo ManualOptions) Outcome {
	url := mo.FeedURL
	if url == "" {
		url = o.opts.FeedURL
	}
	return o.run(ctx, models.RunManual, mo.Force, url)
}

// TestFeedConnectivity fetches and parses a feed without persisting anything
func (o *Orchestrator) TestFeedConnectivity(ctx context.Context, url string) ConnectivityResult {
	if url == "" {
		url = o.opts.FeedURL
	}
	start := o.now()
	res := ConnectivityResult{URL: url}

	items, status, size, err := o.load(ctx, url)
	res.Duration = o.now().Sub(start)
	res.Status = status
	res.Bytes = size
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.ItemCount = len(items)
	return res
}

func (o *Orchestrator) run(ctx context.Context, runType models.RunType, force bool, url string) Outcome {
	start := o.now()
	report := &models.SyncRunReport{
		RunID:     uuid.NewString(),
		Type:      runType,
		StartedAt: start.UTC(),
	}
	l := o.logger.With("run_id", report.RunID, "type", runType)

	held, holder, err := o.acquire(ctx, runType, l)
	if errors.Is(err, lock.ErrLockHeld) {
		metrics.LockContention.WithLabelValues(string(runType)).Inc()
		metrics.SyncRuns.WithLabelValues(string(runType), "locked").Inc()
		l.Info("Sync already running, not starting", "holder", holderType(holder))
		return Outcome{AlreadyRunning: true, Holder: holder}
	}
	if err == nil {
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				l.Warn("Sync lock release failed", "error", err)
			}
		}()
		l.Info("Sync run started", "force", force)
		err = o.execute(ctx, report, force, url, l)
	}

	return Outcome{Report: o.finish(ctx, report, start, err, l)}
}

// acquire takes the run lock. Automatic runs first clear a holder past the staleness
// threshold; manual runs never clear.
func (o *Orchestrator) acquire(ctx context.Context, runType models.RunType, l *slog.Logger) (*lock.Lock, *lock.Info, error) {
	if runType == models.RunAuto && o.opts.StaleAfter > 0 {
		cleared, err := o.locker.ClearIfStale(ctx, o.opts.StaleAfter)
		if err != nil {
			return nil, nil, err
		}
		if cleared {
			metrics.StaleLocksCleared.Inc()
			l.Warn("Stale sync lock cleared before automatic run")
		}
	}

	held, err := o.locker.Acquire(ctx, runType)
	if errors.Is(err, lock.ErrLockHeld) {
		holder, _ := o.locker.Inspect(ctx)
		return nil, holder, err
	}
	return held, nil, err
}

func (o *Orchestrator) execute(ctx context.Context, report *models.SyncRunReport, force bool, url string, l *slog.Logger) error {
	items, _, _, err := o.load(ctx, url)
	if err != nil {
		return err
	}
	report.TotalItems = len(items)
	l.Info("Feed parsed", "items", len(items), "batch_size", o.opts.BatchSize)

	for begin := 0; begin < len(items); begin += o.opts.BatchSize {
		if begin > 0 {
			o.pause(ctx, o.opts.BatchPause)
			if ctx.Err() != nil {
				return fmt.Errorf("run interrupted after %d of %d items: %w", begin, len(items), ctx.Err())
			}
		}
		end := min(begin+o.opts.BatchSize, len(items))
		o.processBatch(ctx, report, items[begin:end], begin, force, l)
	}
	return nil
}

// load fetches and parses the feed, returning its items, the HTTP status and body size
func (o *Orchestrator) load(ctx context.Context, url string) ([]*xmlfeed.Node, int, int, error) {
	if url == "" {
		return nil, 0, 0, ErrNoFeedURL
	}

	resp, err := o.fetcher.Fetch(ctx, url, o.opts.FeedTimeout)
	if err != nil {
		var se *fetcher.StatusError
		if errors.As(err, &se) {
			return nil, se.Code, 0, fmt.Errorf("%w: feed returned HTTP %d", ErrTransport, se.Code)
		}
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	root, err := xmlfeed.Parse(resp.Body)
	if err != nil {
		return nil, resp.Status, len(resp.Body), fmt.Errorf("%w: %v", ErrFeedUnparseable, err)
	}
	items := xmlfeed.Items(root, o.opts.ItemElement)
	if len(items) == 0 {
		return nil, resp.Status, len(resp.Body), fmt.Errorf("%w: no <%s> elements under <%s>", ErrFeedEmpty, o.opts.ItemElement, root.Name)
	}
	return items, resp.Status, len(resp.Body), nil
}

func (o *Orchestrator) processBatch(ctx context.Context, report *models.SyncRunReport, batch []*xmlfeed.Node, offset int, force bool, l *slog.Logger) {
	start := time.Now()
	metrics.BatchSize.Observe(float64(len(batch)))

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		l.Debug("Batch cycle telemetry",
			"offset", offset,
			"count", len(batch),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	for i, node := range batch {
		idx := offset + i
		action, externalID, err := o.processItem(ctx, node, force, l)
		if err != nil {
			report.Skipped++
			metrics.ItemsProcessed.WithLabelValues("error").Inc()
			l.Error("Item failed, counted as skipped", "index", idx, "external_id", externalID, "error", err)
			if len(report.Errors) < MaxReportErrors {
				report.Errors = append(report.Errors, models.ItemError{
					ExternalID: externalID,
					Index:      idx,
					Message:    err.Error(),
					Timestamp:  o.now().UTC(),
				})
			}
			continue
		}

		metrics.ItemsProcessed.WithLabelValues(string(action)).Inc()
		switch action {
		case models.ActionInsert:
			report.Added++
		case models.ActionUpdate:
			report.Updated++
		default:
			report.Skipped++
		}
	}
}

// processItem extracts, maps, normalizes and reconciles one feed item. A panic anywhere
// in the pipeline is returned as an error for this item only.
func (o *Orchestrator) processItem(ctx context.Context, node *xmlfeed.Node, force bool, l *slog.Logger) (action models.Action, externalID string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing item: %v", p)
		}
	}()

	fm := o.mapper.Map(xmlfeed.Extract(node))
	externalID = values.AsString(fm["external_id"])

	rec, err := normalizer.Normalize(fm)
	if err != nil {
		return "", externalID, err
	}

	res, err := o.reconciler.Reconcile(ctx, rec.Meta.ExternalID, rec, force)
	if err != nil {
		return "", externalID, err
	}

	if res.Action != models.ActionSkip && o.images != nil {
		if urls := rec.ImageURLs(); len(urls) > 0 {
			if _, err := o.images.Enqueue(ctx, res.StoredID, urls); err != nil {
				l.Warn("Image enqueue failed", "external_id", externalID, "entity_id", res.StoredID, "error", err)
			}
		}
	}
	return res.Action, externalID, nil
}

func (o *Orchestrator) finish(ctx context.Context, report *models.SyncRunReport, start time.Time, runErr error, l *slog.Logger) *models.SyncRunReport {
	report.Duration = o.now().Sub(start)
	report.Status = models.RunSuccess
	if runErr != nil {
		report.Status = models.RunError
		report.Error = runErr.Error()
	}

	metrics.SyncRuns.WithLabelValues(string(report.Type), string(report.Status)).Inc()
	metrics.SyncRunDuration.WithLabelValues(string(report.Type)).Observe(report.Duration.Seconds())

	// the report outlives a cancelled run context
	saveCtx := context.WithoutCancel(ctx)
	if err := o.history.Append(saveCtx, *report); err != nil {
		l.Error("Failed to append run report to history", "error", err)
	}
	if o.publisher != nil {
		if err := o.publisher.PublishRun(saveCtx, *report); err != nil {
			l.Warn("Run report not published", "error", err)
		}
	}

	if runErr != nil {
		l.Error("Sync run failed", "error", runErr, "duration", report.Duration)
	} else {
		l.Info("Sync run finished",
			"total", report.TotalItems,
			"added", report.Added,
			"updated", report.Updated,
			"skipped", report.Skipped,
			"duration", report.Duration,
		)
	}
	return report
}

func holderType(info *lock.Info) string {
	if info == nil {
		return ""
	}
	return string(info.RunType)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
