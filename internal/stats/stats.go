// Package stats tracks request counters for GET /api/stats and mirrors them
// into Prometheus collectors for the /metrics endpoint.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the JSON shape of the orchestrator section of GET /api/stats.
type Snapshot struct {
	TotalRequests         int     `json:"total_requests"`
	SuccessfulRequests    int     `json:"successful_requests"`
	FailedRequests        int     `json:"failed_requests"`
	CacheHits             int     `json:"cache_hits"`
	AverageProcessingTime float64 `json:"average_processing_time"` // seconds
}

// Tracker accumulates request outcomes. Safe for concurrent use.
type Tracker struct {
	mu                  sync.Mutex
	total               int
	successful          int
	failed              int
	cacheHits           int
	totalProcessingTime float64

	requestsTotal  *prometheus.CounterVec
	cacheHitsTotal prometheus.Counter
	processingHist prometheus.Histogram
}

// New creates a Tracker and registers its collectors on reg. A nil registry
// skips Prometheus entirely (metrics disabled).
func New(reg prometheus.Registerer) *Tracker {
	t := &Tracker{}
	if reg == nil {
		return t
	}
	t.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Name:      "requests_total",
		Help:      "Pipeline requests by outcome.",
	}, []string{"outcome"})
	t.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "council",
		Name:      "cache_hits_total",
		Help:      "Requests served from the response cache.",
	})
	t.processingHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "council",
		Name:      "request_duration_seconds",
		Help:      "End-to-end pipeline processing time.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	reg.MustRegister(t.requestsTotal, t.cacheHitsTotal, t.processingHist)
	return t
}

// Success records one completed request and its processing time in seconds.
func (t *Tracker) Success(seconds float64) {
	t.mu.Lock()
	t.total++
	t.successful++
	t.totalProcessingTime += seconds
	t.mu.Unlock()
	if t.requestsTotal != nil {
		t.requestsTotal.WithLabelValues("success").Inc()
		t.processingHist.Observe(seconds)
	}
}

// Failure records one failed request.
func (t *Tracker) Failure() {
	t.mu.Lock()
	t.total++
	t.failed++
	t.mu.Unlock()
	if t.requestsTotal != nil {
		t.requestsTotal.WithLabelValues("failure").Inc()
	}
}

// CacheHit records one request served from cache. Cached serves count toward
// totals and cache_hits only; successful_requests covers computed runs.
func (t *Tracker) CacheHit() {
	t.mu.Lock()
	t.total++
	t.cacheHits++
	t.mu.Unlock()
	if t.requestsTotal != nil {
		t.requestsTotal.WithLabelValues("success").Inc()
		t.cacheHitsTotal.Inc()
	}
}

// Snapshot returns a consistent copy of the counters. The average covers
// computed successful requests.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		TotalRequests:      t.total,
		SuccessfulRequests: t.successful,
		FailedRequests:     t.failed,
		CacheHits:          t.cacheHits,
	}
	if t.successful > 0 {
		s.AverageProcessingTime = t.totalProcessingTime / float64(t.successful)
	}
	return s
}
