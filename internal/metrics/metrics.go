// Package metrics collects Prometheus metrics for a build and writes them to
// a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docvec"

// Embedding batch outcomes used as the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder holds the metrics of one build. Each Recorder owns its registry,
// so tests and repeated builds never collide on global state.
type Recorder struct {
	registry *prometheus.Registry

	documentsLoaded prometheus.Counter
	chunksCreated   prometheus.Counter
	embedBatches    *prometheus.CounterVec
	embedDuration   *prometheus.HistogramVec
	stageDuration   *prometheus.GaugeVec
	indexVectors    prometheus.Gauge
	lastSuccess     prometheus.Gauge
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		documentsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_loaded_total",
			Help:      "Documents read by the loader",
		}),

		chunksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Chunks produced by the splitter",
		}),

		embedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding batches sent, by provider and outcome",
		}, []string{"provider", "status"}),

		embedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_batch_duration_seconds",
			Help:      "Embedding batch latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage in the last build",
		}, []string{"stage"}),

		indexVectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_vectors",
			Help:      "Vectors in the persisted index",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful build",
		}),
	}

	r.registry.MustRegister(
		r.documentsLoaded,
		r.chunksCreated,
		r.embedBatches,
		r.embedDuration,
		r.stageDuration,
		r.indexVectors,
		r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// DocumentsLoaded adds n loaded documents.
func (r *Recorder) DocumentsLoaded(n int) {
	r.documentsLoaded.Add(float64(n))
}

// ChunksCreated adds n created chunks.
func (r *Recorder) ChunksCreated(n int) {
	r.chunksCreated.Add(float64(n))
}

// EmbedBatch records one embedding batch.
func (r *Recorder) EmbedBatch(provider string, d time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	r.embedBatches.WithLabelValues(provider, status).Inc()
	r.embedDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// StageDuration sets the duration of a pipeline stage.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// IndexPersisted records the final vector count and marks the build as
// successful.
func (r *Recorder) IndexPersisted(vectors int, at time.Time) {
	r.indexVectors.Set(float64(vectors))
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
