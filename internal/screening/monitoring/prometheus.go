package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the screening engine.
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	// Request lifecycle metrics
	ScreeningsSubmitted *prometheus.CounterVec
	ScreeningsFinished  *prometheus.CounterVec
	ScreeningDuration   *prometheus.HistogramVec
	RiskScores          prometheus.Histogram

	// Match metrics
	MatchesProduced *prometheus.CounterVec
	MatchConfidence *prometheus.HistogramVec

	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderRetries  *prometheus.CounterVec
	CandidateCache   *prometheus.CounterVec
	DispatchQueueLen prometheus.Gauge

	// Rule and review metrics
	RuleTriggers *prometheus.CounterVec
	Reviews      *prometheus.CounterVec

	// Lifecycle events seen on the in-process bus
	Events *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all metrics on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ScreeningsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "requests",
				Name:      "submitted_total",
				Help:      "Total number of screening requests submitted",
			},
			[]string{"priority"},
		),

		ScreeningsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "requests",
				Name:      "finished_total",
				Help:      "Total number of screening requests reaching a terminal status",
			},
			[]string{"status"},
		),

		ScreeningDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "screening",
				Subsystem: "requests",
				Name:      "processing_duration_seconds",
				Help:      "Time taken to process a screening request",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"priority", "status"},
		),

		RiskScores: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "screening",
				Subsystem: "requests",
				Name:      "risk_score",
				Help:      "Aggregate risk score of completed screenings",
				Buckets:   []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1.0},
			},
		),

		MatchesProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "matches",
				Name:      "produced_total",
				Help:      "Total number of matches produced",
			},
			[]string{"match_level", "list_type"},
		),

		MatchConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "screening",
				Subsystem: "matches",
				Name:      "confidence",
				Help:      "Confidence score of produced matches",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"match_level"},
		),

		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "providers",
				Name:      "calls_total",
				Help:      "Total number of provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),

		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "screening",
				Subsystem: "providers",
				Name:      "call_duration_seconds",
				Help:      "Latency of provider candidate fetches",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),

		ProviderRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "providers",
				Name:      "retries_total",
				Help:      "Total number of provider call retries",
			},
			[]string{"provider"},
		),

		CandidateCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "providers",
				Name:      "candidate_cache_total",
				Help:      "Candidate cache lookups by result",
			},
			[]string{"result"},
		),

		DispatchQueueLen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "screening",
				Subsystem: "dispatcher",
				Name:      "queue_length",
				Help:      "Number of requests waiting for a worker",
			},
		),

		RuleTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "rules",
				Name:      "triggers_total",
				Help:      "Total number of rule actions executed",
			},
			[]string{"rule_id", "action"},
		),

		Reviews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "review",
				Name:      "dispositions_total",
				Help:      "Total number of review dispositions recorded",
			},
			[]string{"decision"},
		),

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "screening",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of lifecycle events by type",
			},
			[]string{"type"},
		),
	}
}

// RecordSubmitted records a submitted screening request
func (pm *PrometheusMetrics) RecordSubmitted(priority string) {
	if pm == nil {
		return
	}
	pm.ScreeningsSubmitted.WithLabelValues(priority).Inc()
}

// RecordFinished records a request reaching a terminal status
func (pm *PrometheusMetrics) RecordFinished(priority, status string, duration float64, riskScore float64) {
	if pm == nil {
		return
	}
	pm.ScreeningsFinished.WithLabelValues(status).Inc()
	pm.ScreeningDuration.WithLabelValues(priority, status).Observe(duration)
	if status == "completed" {
		pm.RiskScores.Observe(riskScore)
	}
}

// RecordMatch records a produced match
func (pm *PrometheusMetrics) RecordMatch(matchLevel, listType string, confidence float64) {
	if pm == nil {
		return
	}
	pm.MatchesProduced.WithLabelValues(matchLevel, listType).Inc()
	pm.MatchConfidence.WithLabelValues(matchLevel).Observe(confidence)
}

// RecordProviderCall records a provider call with its latency
func (pm *PrometheusMetrics) RecordProviderCall(provider, outcome string, duration float64) {
	if pm == nil {
		return
	}
	pm.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	pm.ProviderLatency.WithLabelValues(provider).Observe(duration)
}

// RecordProviderRetry records a retried provider call
func (pm *PrometheusMetrics) RecordProviderRetry(provider string) {
	if pm == nil {
		return
	}
	pm.ProviderRetries.WithLabelValues(provider).Inc()
}

// RecordCacheLookup records a candidate cache hit, miss or error
func (pm *PrometheusMetrics) RecordCacheLookup(result string) {
	if pm == nil {
		return
	}
	pm.CandidateCache.WithLabelValues(result).Inc()
}

// SetQueueLength sets the dispatcher queue length
func (pm *PrometheusMetrics) SetQueueLength(n int) {
	if pm == nil {
		return
	}
	pm.DispatchQueueLen.Set(float64(n))
}

// RecordRuleTrigger records an executed rule action
func (pm *PrometheusMetrics) RecordRuleTrigger(ruleID, action string) {
	if pm == nil {
		return
	}
	pm.RuleTriggers.WithLabelValues(ruleID, action).Inc()
}

// RecordReview records a review disposition
func (pm *PrometheusMetrics) RecordReview(decision string) {
	if pm == nil {
		return
	}
	pm.Reviews.WithLabelValues(decision).Inc()
}

// RecordEvent records a lifecycle event
func (pm *PrometheusMetrics) RecordEvent(eventType string) {
	if pm == nil {
		return
	}
	pm.Events.WithLabelValues(eventType).Inc()
}
