package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImageQueueDepth tracks the queue by status (pending/failed)
	// A growing failed count needs an operator retry
	ImageQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_image_queue_depth",
		Help: "Current number of queued images by status",
	}, []string{"status"})

	// ImagesEnqueued counts images accepted into the queue after dedup
	ImagesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_images_enqueued_total",
		Help: "Total number of images added to the queue",
	})

	// ImagesProcessed tracks image outcomes. reason is empty on success
	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_images_processed_total",
		Help: "Total number of image jobs processed by result and failure reason",
	}, []string{"result", "reason"}) // result: imported, retry, failed

	// ImageProcessDuration is the end-to-end latency of one image job
	ImageProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedsync_image_process_duration_seconds",
		Help:    "Time taken to validate, download and store one image",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)
