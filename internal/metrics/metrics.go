// Package metrics exposes Prometheus collectors for enrichment runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "landscape"

// Outcome labels for scoring requests.
const (
	OutcomeScored     = "scored"
	OutcomeNotIndexed = "not_indexed"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FollowPages    prometheus.Counter
	FollowAccounts prometheus.Counter
	ScoreRequests  *prometheus.CounterVec
	ScoreDuration  prometheus.Histogram
	ScoreInFlight  prometheus.Gauge
	RowsEmitted    prometheus.Counter
	CacheHits      prometheus.Counter
	RunProgress    prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FollowPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follow",
			Name:      "pages_total",
			Help:      "Following pages fetched from the social-graph API",
		}),
		FollowAccounts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follow",
			Name:      "accounts_total",
			Help:      "Followed accounts retrieved",
		}),
		ScoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "accounts_total",
			Help:      "Accounts processed by the enrichment engine, by outcome",
		}, []string{"outcome"}),
		ScoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "score_duration_seconds",
			Help:      "Latency of scoring calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ScoreInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "score_in_flight",
			Help:      "Scoring calls currently in flight",
		}),
		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "rows_total",
			Help:      "Enriched rows emitted",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_hits_total",
			Help:      "Runs answered from a cached artifact",
		}),
		RunProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "progress_ratio",
			Help:      "Completed fraction of the current enrichment run",
		}),
	}
	m.registry.MustRegister(
		m.FollowPages,
		m.FollowAccounts,
		m.ScoreRequests,
		m.ScoreDuration,
		m.ScoreInFlight,
		m.RowsEmitted,
		m.CacheHits,
		m.RunProgress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFollowPage records one fetched following page.
func (m *Metrics) ObserveFollowPage(accounts int) {
	if m == nil {
		return
	}
	m.FollowPages.Inc()
	m.FollowAccounts.Add(float64(accounts))
}

// StartScore marks a scoring call in flight and returns the function that ends it.
func (m *Metrics) StartScore() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.ScoreInFlight.Inc()
	return func() {
		m.ScoreInFlight.Dec()
		m.ScoreDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveAccount records one finished account.
func (m *Metrics) ObserveAccount(outcome string, rows int) {
	if m == nil {
		return
	}
	m.ScoreRequests.WithLabelValues(outcome).Inc()
	m.RowsEmitted.Add(float64(rows))
}

// SetProgress publishes the current completed fraction.
func (m *Metrics) SetProgress(fraction float64) {
	if m == nil {
		return
	}
	m.RunProgress.Set(fraction)
}

// ObserveCacheHit records a run served from cache.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}
