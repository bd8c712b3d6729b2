// Package monitoring provides Prometheus metrics for the diagnostic
// engine.
//
// Usage:
//
//	monitoring.RecordCacheOperation("get", "hit")
//	monitoring.RecordEncoderCall("encode_batch", time.Since(start), err == nil)
//	monitoring.RecordVectorSearch("broad", time.Since(start), err == nil)
//	monitoring.RecordAnalysis(time.Since(start), string(result.ReviewTier))
//	monitoring.RecordDegradedMode("cache")
//
// Expose via promhttp on the server's /metrics endpoint.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dxcore_cache_operations_total",
		Help: "Embedding cache operations by result (hit/miss/error/success)",
	}, []string{"operation", "result"})

	encoderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dxcore_encoder_calls_total",
		Help: "Embedding backend calls by status",
	}, []string{"operation", "status"})

	encoderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dxcore_encoder_call_duration_seconds",
		Help:    "Embedding backend call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	vectorSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dxcore_vector_searches_total",
		Help: "Vector index searches by sub-query and status",
	}, []string{"query", "status"})

	vectorSearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dxcore_vector_search_duration_seconds",
		Help:    "Vector index search latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dxcore_analysis_duration_seconds",
		Help:    "End-to-end diagnostic analysis latency by resulting tier",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"tier"})

	redFlagHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dxcore_red_flag_cases_total",
		Help: "Cases where the red-flag detector matched at least one phrase",
	})

	degradedMode = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dxcore_degraded_operations_total",
		Help: "Operations that fell back to a degraded path, by component",
	}, []string{"component"})

	ingestRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dxcore_ingest_rows_total",
		Help: "Ingest pipeline rows by source and outcome (kept/skipped/error)",
	}, []string{"source", "outcome"})
)

func RecordCacheOperation(operation, result string) {
	cacheOperations.WithLabelValues(operation, result).Inc()
}

func RecordEncoderCall(operation string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	encoderCalls.WithLabelValues(operation, status).Inc()
	encoderDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordVectorSearch(query string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	vectorSearches.WithLabelValues(query, status).Inc()
	vectorSearchDuration.WithLabelValues(query).Observe(d.Seconds())
}

func RecordAnalysis(d time.Duration, tier string) {
	analysisDuration.WithLabelValues(tier).Observe(d.Seconds())
}

func RecordRedFlagCase() {
	redFlagHits.Inc()
}

func RecordDegradedMode(component string) {
	degradedMode.WithLabelValues(component).Inc()
}

func RecordIngestRow(source, outcome string) {
	ingestRows.WithLabelValues(source, outcome).Inc()
}
