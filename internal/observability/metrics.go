package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_validator"

// Metrics holds the Prometheus counters, histograms, and gauges for report validation.
type Metrics struct {
	ReportsConsumed  prometheus.Counter
	InvalidReports   prometheus.Counter
	ReportsProcessed prometheus.Counter
	PipelineRunning  prometheus.Gauge
	BatchSize        prometheus.Histogram

	Verdicts            *prometheus.CounterVec // labels: status={pending,verified,rejected}
	EvidenceUnavailable *prometheus.CounterVec // labels: source={classifier,alert_feed}
	CommitErrors        prometheus.Counter
	NotifyErrors        prometheus.Counter
	AlertMatches        prometheus.Histogram
	ProcessDuration     prometheus.Histogram

	// Collaborator cache metrics.
	ClassifierCache *prometheus.CounterVec // labels: result={hit,miss}
	AlertCache      *prometheus.CounterVec // labels: result={hit,miss,error}
	ClassifierCalls *prometheus.CounterVec // labels: outcome={success,error,text_fallback}
	AlertFeedCalls  *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all validation metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_consumed_total",
			Help:      "Total submitted-report messages read from the source topic.",
		}),
		InvalidReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_reports_total",
			Help:      "Submitted-report messages skipped because they could not be parsed.",
		}),
		ReportsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_processed_total",
			Help:      "Reports whose verdict was committed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the consumer is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Committed verdicts by status.",
		}, []string{"status"}),
		EvidenceUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_unavailable_total",
			Help:      "Runs that degraded because an evidence source failed or timed out.",
		}, []string{"source"}),
		CommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_errors_total",
			Help:      "Verdict commits that failed and must be retried.",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Verdict notifications that could not be delivered.",
		}),
		AlertMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_matches",
			Help:      "Official alerts correlated with each report.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Duration of one report validation run, commit included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		ClassifierCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_total",
			Help:      "Classifier cache lookups by result.",
		}, []string{"result"}),
		AlertCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_cache_total",
			Help:      "Alert snapshot cache lookups by result.",
		}, []string{"result"}),
		ClassifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Classifier API requests by outcome.",
		}, []string{"outcome"}),
		AlertFeedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_feed_requests_total",
			Help:      "Alert feed API requests by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReportsConsumed,
		m.InvalidReports,
		m.ReportsProcessed,
		m.PipelineRunning,
		m.BatchSize,
		m.Verdicts,
		m.EvidenceUnavailable,
		m.CommitErrors,
		m.NotifyErrors,
		m.AlertMatches,
		m.ProcessDuration,
		m.ClassifierCache,
		m.AlertCache,
		m.ClassifierCalls,
		m.AlertFeedCalls,
	}
}
