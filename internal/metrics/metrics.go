// Package metrics implements the metrics registry (C10): a private
// prometheus.Registry rendered on demand through the CLI's stats
// subcommand, with no mandatory HTTP listener.
package metrics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every godaemon_* metric.
type Registry struct {
	reg *prometheus.Registry

	IterationDuration prometheus.Histogram
	IterationIdle     prometheus.Histogram
	Overruns          prometheus.Counter
	WorkerCalls       *prometheus.CounterVec
	Restarts          prometheus.Counter
}

// New builds a Registry. When enabled is false the metrics are not
// registered, so Render returns an empty string; the observation methods
// still work either way, so callers don't need their own branch.
func New(enabled bool) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "godaemon_iteration_duration_seconds",
			Help:    "Wall-clock duration of each main-loop iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		IterationIdle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "godaemon_iteration_idle_seconds",
			Help:    "Idle remainder after each main-loop iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		Overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "godaemon_overrun_total",
			Help: "Iterations whose duration exceeded loop_interval.",
		}),
		WorkerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "godaemon_worker_call_total",
			Help: "Worker mediator calls by terminal status.",
		}, []string{"status"}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "godaemon_restarts_total",
			Help: "Lifecycle Controller restarts (SIGHUP or auto_restart_interval).",
		}),
	}
	if !enabled {
		return r
	}
	reg.MustRegister(r.IterationDuration, r.IterationIdle, r.Overruns, r.WorkerCalls, r.Restarts)
	return r
}

// ObserveIteration records one completed iteration's duration and idle
// time, satisfying daemon.MetricsSink.
func (r *Registry) ObserveIteration(duration, idle time.Duration) {
	r.IterationDuration.Observe(duration.Seconds())
	if idle > 0 {
		r.IterationIdle.Observe(idle.Seconds())
	}
}

// IncOverrun increments the overrun counter.
func (r *Registry) IncOverrun() { r.Overruns.Inc() }

// IncRestart increments the restart counter.
func (r *Registry) IncRestart() { r.Restarts.Inc() }

// ObserveWorkerCall increments the per-status worker-call counter.
func (r *Registry) ObserveWorkerCall(status string) {
	r.WorkerCalls.WithLabelValues(status).Inc()
}

// Render formats every collected metric in the Prometheus text exposition
// format, the same rendering expfmt gives an HTTP /metrics handler,
// without requiring one.
func (r *Registry) Render() (string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return "", fmt.Errorf("metrics: gather: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("metrics: encode: %w", err)
		}
	}
	return buf.String(), nil
}
