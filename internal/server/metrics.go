package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the prometheus implementation of orchestrator.Metrics.
type Metrics struct {
	executions        *prometheus.CounterVec
	validationRetries prometheus.Counter
	halts             prometheus.Counter
	executionSeconds  prometheus.Histogram
}

// NewMetrics registers the orchestrator metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claudepm_executions_total",
			Help: "Agent executions by result (success, failure, quota).",
		}, []string{"result"}),
		validationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claudepm_validation_retries_total",
			Help: "Corrective retries issued after a failed hallucination check.",
		}),
		halts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claudepm_halts_total",
			Help: "Times the orchestrator halted itself.",
		}),
		executionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claudepm_execution_seconds",
			Help:    "Wall time of one agent execution.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(m.executions, m.validationRetries, m.halts, m.executionSeconds)
	return m
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(result string, seconds float64) {
	m.executions.WithLabelValues(result).Inc()
	m.executionSeconds.Observe(seconds)
}

// IncValidationRetry counts a corrective retry.
func (m *Metrics) IncValidationRetry() { m.validationRetries.Inc() }

// IncHalt counts a halt.
func (m *Metrics) IncHalt() { m.halts.Inc() }
