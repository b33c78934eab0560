package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the derivation pipeline.
type Metrics struct {
	// Completed pipeline runs by final validity status.
	RunsCompleted *prometheus.CounterVec

	// Stage failures by stage name and failure kind
	// (missing_prerequisite, table_load, internal).
	StageFailures *prometheus.CounterVec

	// Per-stage execution latency.
	StageLatency *prometheus.HistogramVec

	// Condition strings that failed to parse or referenced unknown keys.
	ConditionFailures prometheus.Counter
}

// New creates and registers all pipeline metrics.
func New() *Metrics {
	return &Metrics{
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_runs_completed_total",
			Help: "Total completed pipeline runs by final validity status",
		}, []string{"status"}),

		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_stage_failures_total",
			Help: "Total stage failures by stage and failure kind",
		}, []string{"stage", "kind"}),

		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexaudit_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"stage"}),

		ConditionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_condition_eval_failures_total",
			Help: "Total rule conditions that evaluated to false due to parse or lookup errors",
		}),
	}
}

// IncrementRun records a completed run with its terminal validity status.
func (m *Metrics) IncrementRun(status string) {
	if m != nil {
		m.RunsCompleted.WithLabelValues(status).Inc()
	}
}

// IncrementStageFailure records a stage failure.
func (m *Metrics) IncrementStageFailure(stage, kind string) {
	if m != nil {
		m.StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

// ObserveStageLatency records the duration of one stage.
func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementConditionFailure records a condition that failed to evaluate.
func (m *Metrics) IncrementConditionFailure() {
	if m != nil {
		m.ConditionFailures.Inc()
	}
}
