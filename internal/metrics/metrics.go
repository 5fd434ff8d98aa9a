// Package metrics defines the Prometheus collectors of inference runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inference holds the collectors recorded by the belief propagation engine.
// A nil *Inference records nothing.
type Inference struct {
	// runs counts finished runs.
	// Labels: status (converged, max_iterations, timeout, canceled)
	runs *prometheus.CounterVec
	// iterations observes the number of sweeps per run.
	iterations prometheus.Histogram
	// runDuration observes the wall time of whole runs.
	runDuration prometheus.Histogram
	// sweepDuration observes the wall time of single sweeps.
	// Labels: update_order (sequential, parallel)
	sweepDuration *prometheus.HistogramVec
	// messages counts sent messages.
	messages prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Inference {
	f := promauto.With(reg)
	return &Inference{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpgrad",
			Subsystem: "bp",
			Name:      "runs_total",
			Help:      "Finished belief propagation runs by final status",
		}, []string{"status"}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpgrad",
			Subsystem: "bp",
			Name:      "iterations",
			Help:      "Sweeps performed per run",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpgrad",
			Subsystem: "bp",
			Name:      "run_duration_seconds",
			Help:      "Wall time of belief propagation runs",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bpgrad",
			Subsystem: "bp",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of single message-passing sweeps",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"update_order"}),
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bpgrad",
			Subsystem: "bp",
			Name:      "messages_total",
			Help:      "Messages sent",
		}),
	}
}

// RecordSweep records one sweep that sent numMessages messages.
func (m *Inference) RecordSweep(updateOrder string, numMessages int, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(updateOrder).Observe(d.Seconds())
	m.messages.Add(float64(numMessages))
}

// RecordRun records a finished run.
func (m *Inference) RecordRun(status string, iterations int, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.iterations.Observe(float64(iterations))
	m.runDuration.Observe(d.Seconds())
}
