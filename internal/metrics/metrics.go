// Package metrics holds the service's Prometheus collectors on a private
// registry exposed at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicedoc"

// Metrics is nil-safe: every recording method on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	chunksIngested     prometheus.Counter
	filesSkipped       *prometheus.CounterVec
	retrievalDegraded  *prometheus.CounterVec
	completionFailures prometheus.Counter
	memoryTurns        *prometheus.CounterVec
	completionLatency  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Document chunks written to the vector store.",
		}),
		filesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_skipped_total",
			Help:      "Uploaded files that produced no index records.",
		}, []string{"reason"}),
		retrievalDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_empty_total",
			Help:      "Chat requests that proceeded without excerpts or memory.",
		}, []string{"source"}),
		completionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_failures_total",
			Help:      "Failed calls to the completion service.",
		}),
		memoryTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_turns_total",
			Help:      "Conversation turns persisted to memory by result.",
		}, []string{"result"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion service calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	reg.MustRegister(
		m.chunksIngested,
		m.filesSkipped,
		m.retrievalDegraded,
		m.completionFailures,
		m.memoryTurns,
		m.completionLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ChunksIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksIngested.Add(float64(n))
}

func (m *Metrics) FileSkipped(reason string) {
	if m == nil {
		return
	}
	m.filesSkipped.WithLabelValues(reason).Inc()
}

// RetrievalEmpty records a chat whose source ("documents" or "memory")
// contributed nothing.
func (m *Metrics) RetrievalEmpty(source string) {
	if m == nil {
		return
	}
	m.retrievalDegraded.WithLabelValues(source).Inc()
}

func (m *Metrics) CompletionFailed() {
	if m == nil {
		return
	}
	m.completionFailures.Inc()
}

func (m *Metrics) ObserveCompletion(seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.Observe(seconds)
}

func (m *Metrics) MemoryTurn(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.memoryTurns.WithLabelValues(result).Inc()
}
