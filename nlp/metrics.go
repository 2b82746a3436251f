// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sparsenlp"

// Outcome label values of sparsenlp_solves_total.
const (
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	OutcomeConfiguration = "configuration_error"
)

// Metrics collects solve statistics. A nil *Metrics records nothing.
type Metrics struct {
	evaluations *prometheus.CounterVec
	solves      *prometheus.CounterVec
	duration    prometheus.Histogram
	nonzeros    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evaluations_total",
			Help:      "Number of function and jacobian evaluations requested by the solver.",
		}, []string{"kind"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solves_total",
			Help:      "Number of solves by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time of a solve.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		nonzeros: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pattern_nonzeros",
			Help:      "Nonzero count of the sparsity patterns of the last solve.",
		}, []string{"block"}),
	}
	for _, c := range []prometheus.Collector{m.evaluations, m.solves, m.duration, m.nonzeros} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) evaluated(kind string) {
	if m != nil {
		m.evaluations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) solved(outcome string, elapsed time.Duration) {
	if m != nil {
		m.solves.WithLabelValues(outcome).Inc()
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) patterns(linear, nonlinear int) {
	if m != nil {
		m.nonzeros.WithLabelValues("linear").Set(float64(linear))
		m.nonzeros.WithLabelValues("nonlinear").Set(float64(nonlinear))
	}
}
