package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records cart synchronizer activity.
type SyncMetrics struct {
	runs     prometheus.Counter
	drift    prometheus.Counter
	failures prometheus.Counter
	duration prometheus.Histogram
}

// NewSyncMetrics registers the synchronizer metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_runs_total",
		Help: "Completed cart synchronizer polls.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_drift_total",
		Help: "Polls where the server cart differed from the local cart.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_failures_total",
		Help: "Cart fetches that failed during synchronization.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_sync_duration_seconds",
		Help:    "Duration of cart synchronizer polls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(runs, drift, failures, duration)
	return &SyncMetrics{
		runs:     runs,
		drift:    drift,
		failures: failures,
		duration: duration,
	}
}

// ObserveRun records one completed poll.
func (s *SyncMetrics) ObserveRun(duration time.Duration) {
	if s == nil || s.runs == nil {
		return
	}
	s.runs.Inc()
	s.duration.Observe(duration.Seconds())
}

// IncDrift counts a poll that replaced the local cart.
func (s *SyncMetrics) IncDrift() {
	if s == nil || s.drift == nil {
		return
	}
	s.drift.Inc()
}

// IncFailure counts a failed poll.
func (s *SyncMetrics) IncFailure() {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.Inc()
}

// SubmissionMetrics records checkout submission outcomes.
type SubmissionMetrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

// NewSubmissionMetrics registers the submission metrics on the provided registerer.
func NewSubmissionMetrics(reg prometheus.Registerer) *SubmissionMetrics {
	if reg == nil {
		return &SubmissionMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submission_attempts_total",
		Help: "Checkout submission attempts by result.",
	}, []string{"result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submission_outcomes_total",
		Help: "Final checkout submission outcomes by category.",
	}, []string{"category"})
	reg.MustRegister(attempts, outcomes)
	return &SubmissionMetrics{
		attempts: attempts,
		outcomes: outcomes,
	}
}

// IncAttempt counts one submission attempt with the given result label.
func (s *SubmissionMetrics) IncAttempt(result string) {
	if s == nil || s.attempts == nil {
		return
	}
	s.attempts.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncOutcome counts the terminal outcome of a submission.
func (s *SubmissionMetrics) IncOutcome(category string) {
	if s == nil || s.outcomes == nil {
		return
	}
	s.outcomes.WithLabelValues(normalizeLabel(category)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
