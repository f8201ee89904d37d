package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/fetcher"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/store"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

const (
	imageQueueKey = "images:queue"

	DefaultImageTimeout = 30 * time.Second
)

// Stop reasons reported by RunContinuous
const (
	StopQueueEmpty = "queue_empty"
	StopBudget     = "time_budget"
	StopNoProgress = "no_progress"
	StopCancelled  = "cancelled"
)

// AssetStore persists downloaded images and knows which names an entity already has
type AssetStore interface {
	Save(ctx context.Context, entityID, name string, data []byte, contentType string) (string, error)
	ImportedNames(ctx context.Context, entityID string) (map[string]bool, error)
}

// ImageFetcher is the HTTP side of an image job
type ImageFetcher interface {
	Head(ctx context.Context, url string, timeout time.Duration) (int64, error)
	Download(ctx context.Context, url string, timeout time.Duration, maxBytes int64) ([]byte, error)
}

// WakePublisher tells image workers that new items are waiting
type WakePublisher interface {
	PublishImagesQueued(ctx context.Context, event models.ImagesQueuedEvent) error
}

type ImageOptions struct {
	BatchSize   int
	Timeout     time.Duration
	MaxBytes    int64
	MaxAttempts int
	TimeBudget  time.Duration
}

// BatchResult counts one ProcessBatch call. Remaining is the pending count afterwards.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

type ContinuousResult struct {
	Iterations int           `json:"iterations"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Remaining  int           `json:"remaining"`
	StoppedBy  string        `json:"stopped_by"`
	Duration   time.Duration `json:"duration"`
}

type QueueStatus struct {
	Pending int                     `json:"pending"`
	Failed  int                     `json:"failed"`
	Items   []models.ImageQueueItem `json:"items"`
}

type queueDoc struct {
	Items []models.ImageQueueItem `json:"items"`
}

// ImageManager owns the image download queue. The queue is one document in the store
// and every change to it is a single atomic Store.Update, so the syncer and image workers
// in other processes can write it concurrently.
type ImageManager struct {
	store     store.Store
	assets    AssetStore
	fetcher   ImageFetcher
	publisher WakePublisher
	opts      ImageOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewImageManager creates the queue manager. publisher may be nil.
func NewImageManager(s store.Store, assets AssetStore, f ImageFetcher, publisher WakePublisher, opts ImageOptions, logger *slog.Logger) *ImageManager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImageTimeout
	}
	return &ImageManager{
		store:     s,
		assets:    assets,
		fetcher:   f,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue adds the entity's image URLs, skipping URLs already queued for the entity and
// images whose name the entity has already imported. It returns how many were added.
func (m *ImageManager) Enqueue(ctx context.Context, entityID string, urls []string) (int, error) {
	imported, err := m.assets.ImportedNames(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("load imported images for %s: %w", entityID, err)
	}

	added := 0
	now := m.now().UTC()
	err = m.update(ctx, func(doc *queueDoc) error {
		added = 0
		queued := make(map[string]bool)
		for _, it := range doc.Items {
			if it.EntityID == entityID {
				queued[it.ImageURL] = true
			}
		}

		for _, raw := range urls {
			u := strings.TrimSpace(raw)
			if u == "" || queued[u] {
				continue
			}
			name := ImageName(u)
			if imported[name] {
				continue
			}
			queued[u] = true
			doc.Items = append(doc.Items, models.ImageQueueItem{
				EntityID:  entityID,
				ImageName: name,
				ImageURL:  u,
				Status:    models.ImagePending,
				AddedAt:   now,
			})
			added++
		}
		if added == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if added == 0 {
		return 0, nil
	}

	metrics.ImagesEnqueued.Add(float64(added))
	m.logger.Debug("Images enqueued", "entity_id", entityID, "added", added, "offered", len(urls))

	if m.publisher != nil {
		event := models.ImagesQueuedEvent{EventID: uuid.NewString(), EntityID: entityID, Added: added, Timestamp: now}
		if err := m.publisher.PublishImagesQueued(ctx, event); err != nil {
			m.logger.Warn("Images queued event not published", "entity_id", entityID, "error", err)
		}
	}
	return added, nil
}

type jobOutcome struct {
	item models.ImageQueueItem
	err  *ImageError
}

// ProcessBatch works through up to limit pending items in queue order. Successful items
// leave the queue. A failed item goes to the back as pending until it reaches the attempt
// ceiling, then stays as failed until RetryFailed.
func (m *ImageManager) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = m.opts.BatchSize
	}

	doc, err := m.load(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	var picked []models.ImageQueueItem
	for _, it := range doc.Items {
		if it.Status == models.ImagePending {
			picked = append(picked, it)
			if len(picked) == limit {
				break
			}
		}
	}
	if len(picked) == 0 {
		return BatchResult{}, nil
	}

	// downloads run without holding the queue so enqueues are not blocked
	outcomes := make([]jobOutcome, 0, len(picked))
	for _, it := range picked {
		outcomes = append(outcomes, jobOutcome{item: it, err: m.processOne(ctx, it)})
	}

	// outcomes are applied to the queue as it is now, not as it was when picked
	var res BatchResult
	err = m.update(ctx, func(doc *queueDoc) error {
		res = BatchResult{}
		var retried []models.ImageQueueItem
		for _, o := range outcomes {
			i := indexOf(doc.Items, o.item)
			if i < 0 {
				// cleared while we were downloading
				continue
			}
			if o.err == nil {
				res.Processed++
				doc.Items = append(doc.Items[:i], doc.Items[i+1:]...)
				continue
			}

			res.Failed++
			it := doc.Items[i]
			it.Attempts++
			it.LastError = o.err.Error()
			it.LastReason = string(o.err.Reason)
			if it.Attempts >= m.opts.MaxAttempts {
				it.Status = models.ImageFailed
				doc.Items[i] = it
				continue
			}
			doc.Items = append(doc.Items[:i], doc.Items[i+1:]...)
			retried = append(retried, it)
		}
		doc.Items = append(doc.Items, retried...)
		res.Remaining = countStatus(doc.Items, models.ImagePending)
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	for _, o := range outcomes {
		if o.err == nil {
			continue
		}
		attempts := o.item.Attempts + 1
		if attempts >= m.opts.MaxAttempts {
			metrics.ImagesProcessed.WithLabelValues("failed", string(o.err.Reason)).Inc()
			m.logger.Error("Image failed permanently",
				"entity_id", o.item.EntityID,
				"image_url", o.item.ImageURL,
				"reason", o.err.Reason,
				"attempts", attempts,
			)
			continue
		}
		metrics.ImagesProcessed.WithLabelValues("retry", string(o.err.Reason)).Inc()
		m.logger.Warn("Image failed, re-queued",
			"entity_id", o.item.EntityID,
			"image_url", o.item.ImageURL,
			"reason", o.err.Reason,
			"attempts", attempts,
		)
	}
	return res, nil
}

// RunContinuous repeats ProcessBatch until the queue has no pending items, the time budget
// is spent, or an iteration makes no progress at all
func (m *ImageManager) RunContinuous(ctx context.Context) (ContinuousResult, error) {
	start := m.now()
	deadline := start.Add(m.opts.TimeBudget)
	var out ContinuousResult

	for {
		if ctx.Err() != nil {
			out.StoppedBy = StopCancelled
			break
		}
		if m.opts.TimeBudget > 0 && !m.now().Before(deadline) {
			out.StoppedBy = StopBudget
			break
		}

		res, err := m.ProcessBatch(ctx, m.opts.BatchSize)
		if err != nil {
			out.Duration = m.now().Sub(start)
			return out, err
		}
		out.Iterations++
		out.Processed += res.Processed
		out.Failed += res.Failed
		out.Remaining = res.Remaining

		if res.Remaining == 0 {
			out.StoppedBy = StopQueueEmpty
			break
		}
		if res.Processed == 0 && res.Failed == 0 {
			out.StoppedBy = StopNoProgress
			break
		}
	}

	out.Duration = m.now().Sub(start)
	m.logger.Info("Image queue run finished",
		"iterations", out.Iterations,
		"processed", out.Processed,
		"failed", out.Failed,
		"remaining", out.Remaining,
		"stopped_by", out.StoppedBy,
	)
	return out, nil
}

// RetryFailed moves every failed item back to pending with a fresh attempt count
func (m *ImageManager) RetryFailed(ctx context.Context) (int, error) {
	n := 0
	err := m.update(ctx, func(doc *queueDoc) error {
		n = 0
		for i := range doc.Items {
			if doc.Items[i].Status != models.ImageFailed {
				continue
			}
			doc.Items[i].Status = models.ImagePending
			doc.Items[i].Attempts = 0
			doc.Items[i].LastError = ""
			doc.Items[i].LastReason = ""
			n++
		}
		if n == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Clear removes queued items with the given status, or every item when status is empty
func (m *ImageManager) Clear(ctx context.Context, status models.ImageStatus) (int, error) {
	removed := 0
	err := m.update(ctx, func(doc *queueDoc) error {
		kept := make([]models.ImageQueueItem, 0, len(doc.Items))
		for _, it := range doc.Items {
			if status == "" || it.Status == status {
				continue
			}
			kept = append(kept, it)
		}
		removed = len(doc.Items) - len(kept)
		if removed == 0 {
			return store.ErrNoChange
		}
		doc.Items = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Status returns queue counts and the items themselves
func (m *ImageManager) Status(ctx context.Context) (QueueStatus, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	return QueueStatus{
		Pending: countStatus(doc.Items, models.ImagePending),
		Failed:  countStatus(doc.Items, models.ImageFailed),
		Items:   doc.Items,
	}, nil
}

// processOne validates, downloads, checks and stores one image
func (m *ImageManager) processOne(ctx context.Context, it models.ImageQueueItem) *ImageError {
	start := time.Now()
	defer func() {
		metrics.ImageProcessDuration.Observe(time.Since(start).Seconds())
	}()

	fail := func(reason ImageReason, err error) *ImageError {
		return &ImageError{Reason: reason, URL: it.ImageURL, Err: err}
	}

	if err := validateImageURL(it.ImageURL); err != nil {
		return fail(ReasonInvalidURL, err)
	}

	size, err := m.fetcher.Head(ctx, it.ImageURL, m.opts.Timeout)
	if err != nil {
		var se *fetcher.StatusError
		switch {
		case errors.As(err, &se) && (se.Code == http.StatusMethodNotAllowed || se.Code == http.StatusNotImplemented):
			// no HEAD support; the download limit still applies
		case errors.As(err, &se):
			return fail(ReasonHTTPStatus, err)
		default:
			return fail(ReasonTransport, err)
		}
	}
	if m.opts.MaxBytes > 0 && size > m.opts.MaxBytes {
		return fail(ReasonOversized, fmt.Errorf("content length %d exceeds %d", size, m.opts.MaxBytes))
	}

	data, err := m.fetcher.Download(ctx, it.ImageURL, m.opts.Timeout, m.maxBytes())
	if err != nil {
		var se *fetcher.StatusError
		switch {
		case errors.Is(err, fetcher.ErrTooLarge):
			return fail(ReasonOversized, err)
		case errors.As(err, &se):
			return fail(ReasonHTTPStatus, err)
		default:
			return fail(ReasonTransport, err)
		}
	}
	if len(data) == 0 {
		return fail(ReasonEmptyBody, nil)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fail(ReasonInvalidImage, err)
	}

	assetID, err := m.assets.Save(ctx, it.EntityID, it.ImageName, data, "image/"+format)
	if err != nil {
		return fail(ReasonStorageFailed, err)
	}

	metrics.ImagesProcessed.WithLabelValues("imported", "").Inc()
	m.logger.Debug("Image imported", "entity_id", it.EntityID, "image_url", it.ImageURL, "asset_id", assetID, "bytes", len(data))
	return nil
}

func (m *ImageManager) maxBytes() int64 {
	if m.opts.MaxBytes > 0 {
		return m.opts.MaxBytes
	}
	return 10 << 20
}

func (m *ImageManager) load(ctx context.Context) (*queueDoc, error) {
	raw, err := m.store.Get(ctx, imageQueueKey)
	if errors.Is(err, store.ErrNotFound) {
		return &queueDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read image queue: %w", err)
	}
	var doc queueDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode image queue: %w", err)
	}
	return &doc, nil
}

// update applies fn to the queue document in one atomic store write. fn returning
// store.ErrNoChange skips the write.
func (m *ImageManager) update(ctx context.Context, fn func(doc *queueDoc) error) error {
	var depth *queueDoc
	err := m.store.Update(ctx, imageQueueKey, func(current []byte) ([]byte, error) {
		doc := &queueDoc{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, doc); err != nil {
				return nil, fmt.Errorf("decode image queue: %w", err)
			}
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode image queue: %w", err)
		}
		depth = doc
		return raw, nil
	})
	if err != nil {
		return fmt.Errorf("write image queue: %w", err)
	}
	if depth != nil {
		metrics.ImageQueueDepth.WithLabelValues(string(models.ImagePending)).Set(float64(countStatus(depth.Items, models.ImagePending)))
		metrics.ImageQueueDepth.WithLabelValues(string(models.ImageFailed)).Set(float64(countStatus(depth.Items, models.ImageFailed)))
	}
	return nil
}

// ImageName derives the stored file name from the URL path's last segment. URLs without
// a usable segment get a name from their hash.
func ImageName(raw string) string {
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		base := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		if name := sanitizeName(base); name != "" && name != "." && name != "-" {
			return name
		}
	}
	sum := sha256.Sum256([]byte(raw))
	return "image-" + hex.EncodeToString(sum[:])[:12]
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func indexOf(items []models.ImageQueueItem, target models.ImageQueueItem) int {
	for i, it := range items {
		if it.EntityID == target.EntityID && it.ImageURL == target.ImageURL {
			return i
		}
	}
	return -1
}

func countStatus(items []models.ImageQueueItem, status models.ImageStatus) int {
	n := 0
	for _, it := range items {
		if it.Status == status {
			n++
		}
	}
	return n
}
