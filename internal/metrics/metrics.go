// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package metrics records engine and hand-off activity in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements resolve.Recorder and handoff.Recorder.
type Recorder struct {
	tests       *prometheus.CounterVec
	aborted     *prometheus.CounterVec
	handoffs    *prometheus.CounterVec
	evaluations *prometheus.HistogramVec
}

// RegisterMetrics creates the collectors and registers them with reg.
func RegisterMetrics(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjudicator_tests_total",
			Help: "Resolved tests by kind and outcome",
		}, []string{"kind", "level"}),
		aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjudicator_tests_aborted_total",
			Help: "Tests that did not resolve, by kind and reason",
		}, []string{"kind", "reason"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjudicator_handoffs_total",
			Help: "Hand-off protocol steps by phase and status",
		}, []string{"phase", "status"}),
		evaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adjudicator_evaluation_seconds",
			Help:    "Time spent evaluating a test",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"kind"}),
	}
	reg.MustRegister(r.tests, r.aborted, r.handoffs, r.evaluations)
	return r
}

// TestResolved counts a resolved test and observes its evaluation time.
func (r *Recorder) TestResolved(kind, outcome string, elapsed time.Duration) {
	r.tests.WithLabelValues(kind, outcome).Inc()
	r.evaluations.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// TestAborted counts a test that could not resolve.
func (r *Recorder) TestAborted(kind, reason string) {
	r.aborted.WithLabelValues(kind, reason).Inc()
}

// HandoffRecorded counts one hand-off step.
func (r *Recorder) HandoffRecorded(phase, status string) {
	r.handoffs.WithLabelValues(phase, status).Inc()
}
