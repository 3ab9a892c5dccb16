// Package metrics holds the prometheus collectors for one pipeline run. A
// nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	stageRuns *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	defects   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docchain_stage_runs_total",
			Help: "Stages reaching a terminal status.",
		}, []string{"stage", "status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docchain_attempts_total",
			Help: "Generation attempts by outcome (accepted, rejected, error).",
		}, []string{"stage", "outcome"}),
		defects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docchain_defects_total",
			Help: "Contract defects reported by the validator.",
		}, []string{"stage", "rule"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docchain_stage_duration_seconds",
			Help:    "Wall time from a stage starting to reaching a terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
	}
	m.Registry.MustRegister(m.stageRuns, m.attempts, m.defects, m.duration)
	return m
}

// StageFinished records a terminal status and, when d > 0, its duration.
func (m *Metrics) StageFinished(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, status).Inc()
	if d > 0 {
		m.duration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Attempt records one generation attempt.
func (m *Metrics) Attempt(stage, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(stage, outcome).Inc()
}

// Defect records one validator defect.
func (m *Metrics) Defect(stage, rule string) {
	if m == nil {
		return
	}
	m.defects.WithLabelValues(stage, rule).Inc()
}

// WriteFile exports the current values in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
