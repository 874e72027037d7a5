// Package metrics provides Prometheus metrics for the similarity subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter holds the Prometheus collectors for the similarity subsystem.
type Exporter struct {
	registry *prometheus.Registry

	// Similarity query metrics
	SimilarityQueries *prometheus.CounterVec // result: ok, no_embedding, not_found, error
	SimilarityLatency prometheus.Histogram
	CandidatesFound   prometheus.Histogram

	// Dismissal metrics
	Dismissals *prometheus.CounterVec // type: duplicate, related

	// Embedding job metrics
	EmbeddingJobRuns   *prometheus.CounterVec // result: ok, error
	EmbeddingsComputed prometheus.Counter
}

// New creates an Exporter with its own registry.
func New() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		SimilarityQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snagtrack_similarity_queries_total",
			Help: "Total similarity queries by result.",
		}, []string{"result"}),
		SimilarityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snagtrack_similarity_query_duration_seconds",
			Help:    "Similarity query latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		CandidatesFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snagtrack_similarity_candidates",
			Help:    "Candidates returned by the index before filtering.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		Dismissals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snagtrack_similarity_dismissals_total",
			Help: "Total dismissed suggestions by type.",
		}, []string{"type"}),
		EmbeddingJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snagtrack_embedding_job_runs_total",
			Help: "Total embedding job cycles by result.",
		}, []string{"result"}),
		EmbeddingsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snagtrack_embeddings_computed_total",
			Help: "Total bug report embeddings written.",
		}),
	}

	registry.MustRegister(
		e.SimilarityQueries,
		e.SimilarityLatency,
		e.CandidatesFound,
		e.Dismissals,
		e.EmbeddingJobRuns,
		e.EmbeddingsComputed,
	)

	return e
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
