// Package metrics exposes Prometheus collectors for the triage pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Messages seen by the ingestion pipeline by outcome.",
	}, []string{"outcome"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "ingest",
		Name:      "sync_duration_seconds",
		Help:      "Wall time of one account sync.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "classify",
		Name:      "results_total",
		Help:      "Classification results by deciding method.",
	}, []string{"method"})

	AIProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "ai",
		Name:      "errors_total",
		Help:      "Failed calls to the AI provider by operation.",
	}, []string{"operation"})

	EmbeddingCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "classify",
		Name:      "embedding_cache_total",
		Help:      "Category embedding cache lookups by tier and result.",
	}, []string{"tier", "result"})

	UnsubscribeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "unsubscribe",
		Name:      "outcomes_total",
		Help:      "Unsubscribe outcomes by status and method.",
	}, []string{"status", "method"})

	BrowserNavigations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "browser",
		Name:      "navigations_total",
		Help:      "Headless navigation attempts by result.",
	}, []string{"result"})
)
