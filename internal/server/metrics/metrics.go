// Package metrics exposes Prometheus instruments for the storage engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudvault"

type Metrics struct {
	UploadsInitiated  prometheus.Counter     // cloudvault_uploads_initiated_total
	UploadsCompleted  prometheus.Counter     // cloudvault_uploads_completed_total
	UploadsRejected   *prometheus.CounterVec // cloudvault_uploads_rejected_total{reason}
	BytesCommitted    prometheus.Counter     // cloudvault_bytes_committed_total
	LifecycleOps      *prometheus.CounterVec // cloudvault_lifecycle_operations_total{op}
	BytesReleased     prometheus.Counter     // cloudvault_bytes_released_total
	BlobDeleteFailure prometheus.Counter     // cloudvault_blob_delete_failures_total
	UploadsPurged     prometheus.Counter     // cloudvault_uploads_purged_total
	SweepDuration     prometheus.Histogram   // cloudvault_sweep_duration_seconds
}

// New registers the instruments with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		UploadsInitiated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_initiated_total",
			Help:      "Pending uploads admitted",
		}),
		UploadsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_completed_total",
			Help:      "Pending uploads committed as files",
		}),
		UploadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_rejected_total",
			Help:      "Uploads refused at initiate or complete, by reason",
		}, []string{"reason"}),
		BytesCommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_committed_total",
			Help:      "File bytes added to folder trees",
		}),
		LifecycleOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_operations_total",
			Help:      "Trash, restore and permanent delete operations",
		}, []string{"op"}),
		BytesReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_released_total",
			Help:      "File bytes removed from folder trees by permanent deletes",
		}),
		BlobDeleteFailure: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_delete_failures_total",
			Help:      "Blob keys that could not be deleted and were left orphaned",
		}),
		UploadsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_purged_total",
			Help:      "Expired pending uploads removed by the sweeper",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one pending upload sweep",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) UploadInitiated() {
	if m == nil {
		return
	}
	m.UploadsInitiated.Inc()
}

func (m *Metrics) UploadCompleted(bytes int64) {
	if m == nil {
		return
	}
	m.UploadsCompleted.Inc()
	m.BytesCommitted.Add(float64(bytes))
}

func (m *Metrics) UploadRejected(reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Lifecycle(op string) {
	if m == nil {
		return
	}
	m.LifecycleOps.WithLabelValues(op).Inc()
}

func (m *Metrics) Released(bytes int64) {
	if m == nil {
		return
	}
	m.BytesReleased.Add(float64(bytes))
}

func (m *Metrics) BlobDeleteFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BlobDeleteFailure.Add(float64(n))
}

func (m *Metrics) Purged(n int, took time.Duration) {
	if m == nil {
		return
	}
	m.UploadsPurged.Add(float64(n))
	m.SweepDuration.Observe(took.Seconds())
}

// Handler serves the registry gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
