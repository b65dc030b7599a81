// Package metrics exposes verification runs as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/navcheck/internal/verify"
)

const namespace = "navcheck"

// Collector records runs on its own registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lastRun      *prometheus.GaugeVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of verification runs by result",
			},
			[]string{"scenario", "result"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed steps by kind and result",
			},
			[]string{"kind", "result"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step execution time in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last run of the scenario passed, 0 otherwise",
			},
			[]string{"scenario"},
		),
	}
}

// Observer records every executed step.
func (c *Collector) Observer() verify.Observer {
	return func(_ context.Context, rec verify.StepRecord) {
		result := "passed"
		if rec.Err != nil {
			result = string(rec.Err.Kind)
		}
		kind := string(rec.Step.Kind)
		c.stepsTotal.WithLabelValues(kind, result).Inc()
		c.stepDuration.WithLabelValues(kind).Observe(rec.Duration.Seconds())
	}
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(scenario string, run *verify.Run) {
	result, success := "passed", 1.0
	if !run.Passed() {
		result, success = "failed", 0
	}
	c.runsTotal.WithLabelValues(scenario, result).Inc()
	c.lastRun.WithLabelValues(scenario).Set(success)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
