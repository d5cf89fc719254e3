// Package metrics owns the Prometheus collectors of the service. A single
// Metrics value is built at startup against an injectable registry so tests
// can use a fresh prometheus.Registry. All methods are safe on a nil
// receiver, which lets components run without metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docqa"

// Answer paths.
const (
	PathCache    = "cache"
	PathDocument = "document"
	PathRAG      = "rag"
	PathFallback = "fallback"
	PathEmpty    = "empty"
)

// Outcomes shared by index builds and NER jobs.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeError  = "error"
	OutcomeFailed = "failed"
)

type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec

	answersTotal     *prometheus.CounterVec
	indexBuildsTotal *prometheus.CounterVec
	indexChunks      prometheus.Histogram
	nerJobsTotal     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests, partitioned by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qa",
			Name:      "answers_total",
			Help:      "Answers produced, partitioned by the path that produced them.",
		}, []string{"path"}),

		indexBuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "index_builds_total",
			Help:      "Corpus index builds, partitioned by outcome.",
		}, []string{"outcome"}),

		indexChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "index_chunks",
			Help:      "Number of chunks in successfully built indexes.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		nerJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ner",
			Name:      "jobs_total",
			Help:      "Background entity extraction jobs, partitioned by outcome.",
		}, []string{"outcome"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups, partitioned by entry kind and result.",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAnswer(path string) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(path).Inc()
}

func (m *Metrics) IncIndexBuild(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.indexBuildsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.indexChunks.Observe(float64(chunks))
	}
}

func (m *Metrics) IncNERJob(outcome string) {
	if m == nil {
		return
	}
	m.nerJobsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}
