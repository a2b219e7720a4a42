package storage

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsOnce ensures metrics are only registered once.
var metricsOnce sync.Once

// metricsInstance is the singleton storage metrics instance.
var metricsInstance *Metrics

// Metrics holds the Prometheus metrics of the storage engine.
type Metrics struct {
	ChunksWritten prometheus.Counter   // cloudrift_storage_chunks_written_total
	ChunkBytes    prometheus.Counter   // cloudrift_storage_chunk_bytes_total
	MergesTotal   *prometheus.CounterVec // cloudrift_storage_merges_total{status}
	MergeDuration prometheus.Histogram // cloudrift_storage_merge_duration_seconds
	BytesMerged   prometheus.Counter   // cloudrift_storage_bytes_merged_total

	QuotaRejections prometheus.Counter // cloudrift_storage_quota_rejections_total
	CleanupFailures prometheus.Counter // cloudrift_storage_cleanup_failures_total
	QueueDepth      prometheus.Gauge   // cloudrift_storage_background_queue_depth

	ThumbnailsTotal *prometheus.CounterVec // cloudrift_storage_thumbnails_total{outcome}
}

// InitMetrics initializes and registers the storage metrics. Subsequent
// calls return the same instance.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		metricsInstance = &Metrics{
			ChunksWritten: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "cloudrift_storage_chunks_written_total",
				Help: "Total chunk blobs written",
			}),
			ChunkBytes: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "cloudrift_storage_chunk_bytes_total",
				Help: "Total bytes received as chunk blobs",
			}),
			MergesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "cloudrift_storage_merges_total",
				Help: "Merge attempts by status",
			}, []string{"status"}),
			MergeDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
				Name:    "cloudrift_storage_merge_duration_seconds",
				Help:    "Merge duration in seconds",
				Buckets: prometheus.DefBuckets,
			}),
			BytesMerged: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "cloudrift_storage_bytes_merged_total",
				Help: "Total bytes written by successful merges",
			}),
			QuotaRejections: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "cloudrift_storage_quota_rejections_total",
				Help: "Merge admissions rejected by quota",
			}),
			CleanupFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "cloudrift_storage_cleanup_failures_total",
				Help: "Background cleanup operations that failed",
			}),
			QueueDepth: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "cloudrift_storage_background_queue_depth",
				Help: "Tasks waiting in the background queue",
			}),
			ThumbnailsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "cloudrift_storage_thumbnails_total",
				Help: "Thumbnail generation attempts by outcome",
			}, []string{"outcome"}),
		}
	})

	return metricsInstance
}

// GetMetrics returns the singleton metrics instance, or nil if metrics
// have not been initialized.
func GetMetrics() *Metrics {
	return metricsInstance
}

// RecordChunk records one stored chunk blob.
func (m *Metrics) RecordChunk(bytes int64) {
	m.ChunksWritten.Inc()
	m.ChunkBytes.Add(float64(bytes))
}

// RecordMerge records a merge attempt.
func (m *Metrics) RecordMerge(status string, durationSeconds float64) {
	m.MergesTotal.WithLabelValues(status).Inc()
	m.MergeDuration.Observe(durationSeconds)
}

// RecordThumbnail records a thumbnail generation outcome.
func (m *Metrics) RecordThumbnail(outcome string) {
	m.ThumbnailsTotal.WithLabelValues(outcome).Inc()
}
