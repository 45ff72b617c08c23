// Package metrics provides the Prometheus collectors for the annotation
// pipeline.
//
// All recording methods are safe to call on a nil *PipelineMetrics, so
// components can be constructed without metrics in tests and tools.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "annotator"

// Label values shared with callers.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeCancelled = "cancelled"

	PredictionApplied    = "applied"
	PredictionDegraded   = "degraded"
	PredictionSuppressed = "suppressed"

	PatternUpdated = "updated"
	PatternSkipped = "skipped"
	PatternFailed  = "failed"
)

// PipelineMetrics contains all metrics of batch processing, annotation calls,
// feedback capture and pattern learning.
type PipelineMetrics struct {
	JobsStarted        prometheus.Counter
	JobsFinished       *prometheus.CounterVec
	JobsActive         prometheus.Gauge
	ItemsProcessed     *prometheus.CounterVec
	AnnotationAttempts *prometheus.CounterVec
	AnnotationRetries  prometheus.Counter
	AnnotationDuration prometheus.Histogram
	CandidatesStored   prometheus.Counter
	CandidatesDropped  prometheus.Counter
	LimiterWait        prometheus.Histogram
	LimiterTimeouts    prometheus.Counter
	FeedbackRecorded   *prometheus.CounterVec
	PatternUpdates     *prometheus.CounterVec
	Predictions        *prometheus.CounterVec
	PredictionCache    *prometheus.CounterVec
}

// NewPipelineMetrics creates the collectors and registers them with registry.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.JobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_started_total",
		Help:      "Total number of batch jobs started.",
	})
	m.JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Total number of batch jobs that reached a terminal status.",
	}, []string{"status"})
	m.JobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Number of batch jobs currently running.",
	})
	m.ItemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_processed_total",
		Help:      "Total number of batch items finished, by status.",
	}, []string{"status"})
	m.AnnotationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "annotation_attempts_total",
		Help:      "Total number of vision service attempts, by outcome.",
	}, []string{"outcome"})
	m.AnnotationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "annotation_retries_total",
		Help:      "Total number of retried vision service attempts.",
	})
	m.AnnotationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "annotation_duration_seconds",
		Help:      "Duration of single vision service attempts in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	m.CandidatesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_stored_total",
		Help:      "Total number of annotation candidates stored.",
	})
	m.CandidatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_dropped_total",
		Help:      "Total number of malformed annotation candidates dropped.",
	})
	m.LimiterWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limiter_wait_seconds",
		Help:      "Time spent waiting for a rate limit token in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	m.LimiterTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limiter_timeouts_total",
		Help:      "Total number of rate limit token acquisitions that timed out.",
	})
	m.FeedbackRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_recorded_total",
		Help:      "Total number of reviewer feedback events, by action.",
	}, []string{"action"})
	m.PatternUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pattern_updates_total",
		Help:      "Total number of learner pattern updates, by result.",
	}, []string{"result"})
	m.Predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Total number of position predictions, by outcome.",
	}, []string{"outcome"})
	m.PredictionCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prediction_cache_total",
		Help:      "Pattern cache lookups made by the predictor, by result.",
	}, []string{"result"})
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsStarted, m.JobsFinished, m.JobsActive, m.ItemsProcessed,
		m.AnnotationAttempts, m.AnnotationRetries, m.AnnotationDuration,
		m.CandidatesStored, m.CandidatesDropped, m.LimiterWait, m.LimiterTimeouts,
		m.FeedbackRecorded, m.PatternUpdates, m.Predictions, m.PredictionCache,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// JobStarted records a job entering the processing state.
func (m *PipelineMetrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
	m.JobsActive.Inc()
}

// JobFinished records a job reaching a terminal status.
func (m *PipelineMetrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
	m.JobsActive.Dec()
}

// JobSetupFailed records a job that failed before it started processing.
func (m *PipelineMetrics) JobSetupFailed() {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues("failed").Inc()
}

// ItemFinished records a terminal item.
func (m *PipelineMetrics) ItemFinished(status string) {
	if m == nil {
		return
	}
	m.ItemsProcessed.WithLabelValues(status).Inc()
}

// AnnotationAttempt records one vision service attempt. Attempts after the
// first also count as retries.
func (m *PipelineMetrics) AnnotationAttempt(attempt int, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnnotationAttempts.WithLabelValues(outcome).Inc()
	m.AnnotationDuration.Observe(d.Seconds())
	if attempt > 1 {
		m.AnnotationRetries.Inc()
	}
}

// CandidatesProcessed records stored and dropped candidates of one response.
func (m *PipelineMetrics) CandidatesProcessed(stored, dropped int) {
	if m == nil {
		return
	}
	m.CandidatesStored.Add(float64(stored))
	m.CandidatesDropped.Add(float64(dropped))
}

// LimiterWaited records how long a worker waited for a token.
func (m *PipelineMetrics) LimiterWaited(d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.LimiterWait.Observe(d.Seconds())
	if timedOut {
		m.LimiterTimeouts.Inc()
	}
}

// FeedbackReceived records a stored feedback event.
func (m *PipelineMetrics) FeedbackReceived(action string) {
	if m == nil {
		return
	}
	m.FeedbackRecorded.WithLabelValues(action).Inc()
}

// PatternUpdate records the result of applying one event to a pattern.
func (m *PipelineMetrics) PatternUpdate(result string) {
	if m == nil {
		return
	}
	m.PatternUpdates.WithLabelValues(result).Inc()
}

// Prediction records the outcome of one position prediction.
func (m *PipelineMetrics) Prediction(outcome string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(outcome).Inc()
}

// PredictionCacheLookup records a hit or miss in the predictor cache.
func (m *PipelineMetrics) PredictionCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PredictionCache.WithLabelValues(result).Inc()
}
