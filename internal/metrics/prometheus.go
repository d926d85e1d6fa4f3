package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector for Prometheus.
type PrometheusCollector struct {
	stageLatency  *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	quality       *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	riskScore     prometheus.Histogram
	submissions   *prometheus.CounterVec
	retries       *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
	intake        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector whose metrics live under namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each capture pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		quality: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quality_checks_total",
				Help:      "Image quality gate outcomes per side",
			},
			[]string{"side", "acceptable"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Validation verdicts by outcome",
			},
			[]string{"valid", "overridable"},
		),
		riskScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Distribution of verdict risk scores",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Deposit submissions by outcome",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_retries_total",
				Help:      "Retries of transient network failures per upstream",
			},
			[]string{"upstream"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
			},
			[]string{"upstream"},
		),
		intake: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_total",
				Help:      "Backend deposit intake decisions by outcome",
			},
			[]string{"outcome"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Deposit status transitions applied by the backend",
			},
			[]string{"from", "to"},
		),
	}
}

// Register registers all metrics with the given registerer.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.stageLatency,
		pc.stageFailures,
		pc.quality,
		pc.verdicts,
		pc.riskScore,
		pc.submissions,
		pc.retries,
		pc.circuitState,
		pc.intake,
		pc.transitions,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordStage(stage string, success bool, duration time.Duration) {
	pc.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
	if !success {
		pc.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (pc *PrometheusCollector) RecordQuality(side string, acceptable bool) {
	pc.quality.WithLabelValues(side, strconv.FormatBool(acceptable)).Inc()
}

func (pc *PrometheusCollector) RecordVerdict(valid bool, overridable bool, riskScore float64) {
	pc.verdicts.WithLabelValues(strconv.FormatBool(valid), strconv.FormatBool(overridable)).Inc()
	pc.riskScore.Observe(riskScore)
}

func (pc *PrometheusCollector) RecordSubmission(outcome string) {
	pc.submissions.WithLabelValues(outcome).Inc()
}

func (pc *PrometheusCollector) RecordRetry(upstream string) {
	pc.retries.WithLabelValues(upstream).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(upstream string, state CircuitState) {
	pc.circuitState.WithLabelValues(upstream).Set(float64(state))
}

func (pc *PrometheusCollector) RecordIntake(outcome string) {
	pc.intake.WithLabelValues(outcome).Inc()
}

func (pc *PrometheusCollector) RecordTransition(from, to string) {
	pc.transitions.WithLabelValues(from, to).Inc()
}
