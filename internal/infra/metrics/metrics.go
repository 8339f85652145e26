// Package metrics provides Prometheus metrics for the RAG service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pdfrag"

// UnknownModel is the model label recorded for names outside the catalogue.
const UnknownModel = "unknown"

var (
	// InvokeTotal counts RAG invocations by model and outcome.
	InvokeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoke_total",
			Help:      "Total number of RAG invocations",
		},
		[]string{"model", "status"},
	)

	// InvokeDuration measures end-to-end invocation latency.
	InvokeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoke_duration_seconds",
			Help:      "Duration of RAG invocations in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// RetrievalDuration measures retrieval latency per strategy.
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of retrieval calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// IngestTotal counts document ingests and removals.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of document add and remove operations",
		},
		[]string{"operation", "status"},
	)

	// ChunksWritten observes how many chunks each added document produced.
	ChunksWritten = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_per_document",
			Help:      "Distribution of chunk counts per added document",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// RebuildTotal counts retriever rebuilds.
	RebuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_total",
			Help:      "Total number of retriever rebuilds",
		},
		[]string{"status"},
	)

	// JobsTotal counts processed ingest jobs by final status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of processed ingest jobs",
		},
		[]string{"job_type", "status"},
	)

	// QueueDepth tracks jobs waiting in the ingest queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of ingest jobs waiting to be processed",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordInvoke records one RAG invocation.
func RecordInvoke(model string, err error, duration float64) {
	InvokeTotal.WithLabelValues(model, status(err)).Inc()
	InvokeDuration.WithLabelValues(model).Observe(duration)
}

// RecordRetrieval records one retriever call.
func RecordRetrieval(strategy string, duration float64) {
	RetrievalDuration.WithLabelValues(strategy).Observe(duration)
}

// RecordIngest records a document add or remove.
func RecordIngest(operation string, err error) {
	IngestTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordChunks records the chunk count of an added document.
func RecordChunks(n int) {
	ChunksWritten.Observe(float64(n))
}

// RecordRebuild records a retriever rebuild.
func RecordRebuild(err error) {
	RebuildTotal.WithLabelValues(status(err)).Inc()
}

// RecordJob records the outcome of an ingest job.
func RecordJob(jobType, jobStatus string) {
	JobsTotal.WithLabelValues(jobType, jobStatus).Inc()
}

// SetQueueDepth sets the number of waiting jobs.
func SetQueueDepth(n int64) {
	QueueDepth.Set(float64(n))
}
