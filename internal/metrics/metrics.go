// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	executionsTotalCounter      *prometheus.CounterVec
	stepAttemptsCounter         *prometheus.CounterVec
	stepExecutionDurationMetric *prometheus.HistogramVec
	stepRetriesCounter          prometheus.Counter
	liveExecutionsGauge         prometheus.Gauge
	auditAppendFailuresCounter  prometheus.Counter
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		executionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_executions_total",
				Help: "Total number of finished chain executions by terminal state.",
			},
			[]string{"state"},
		)

		stepAttemptsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "step_attempts_total",
				Help: "Total number of step attempts by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		stepExecutionDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "step_execution_duration_seconds",
				Help:    "Duration of step attempts in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		stepRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "step_retries_total",
				Help: "Total number of retried step attempts.",
			},
		)

		liveExecutionsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "live_executions",
				Help: "Number of chain executions currently in flight.",
			},
		)

		auditAppendFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_append_failures_total",
				Help: "Total number of audit entries the store failed to persist.",
			},
		)

		prometheus.MustRegister(
			executionsTotalCounter,
			stepAttemptsCounter,
			stepExecutionDurationMetric,
			stepRetriesCounter,
			liveExecutionsGauge,
			auditAppendFailuresCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, state := range []domain.ExecutionState{
			domain.ExecutionSucceeded,
			domain.ExecutionFailed,
		} {
			executionsTotalCounter.WithLabelValues(string(state))
		}

		for _, kind := range []domain.StepKind{
			domain.StepLLM,
			domain.StepTool,
			domain.StepDecision,
			domain.StepValidation,
			domain.StepTranslation,
		} {
			stepAttemptsCounter.WithLabelValues(string(kind), OutcomeSuccess)
			stepAttemptsCounter.WithLabelValues(string(kind), OutcomeFailure)
		}
	})
}

func IncExecution(state domain.ExecutionState) {
	Init()
	executionsTotalCounter.WithLabelValues(string(state)).Inc()
}

func ObserveStepAttempt(kind domain.StepKind, outcome string, d time.Duration) {
	Init()
	stepAttemptsCounter.WithLabelValues(string(kind), outcome).Inc()
	stepExecutionDurationMetric.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func IncStepRetries() {
	Init()
	stepRetriesCounter.Inc()
}

func AddLiveExecutions(delta float64) {
	Init()
	liveExecutionsGauge.Add(delta)
}

func IncAuditAppendFailures() {
	Init()
	auditAppendFailuresCounter.Inc()
}
