// Package metrics exposes the Prometheus instrumentation shared by the
// simulation engine, the data feeds, and the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all lendvar metrics on a dedicated Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Simulation metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	ScenariosScored prometheus.Counter
	StepDuration    *prometheus.HistogramVec
	ActiveRuns      prometheus.Gauge

	// Data feed metrics
	FeedRequests *prometheus.CounterVec
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
}

// NewRegistry creates and registers all lendvar metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lendvar_runs_total",
				Help: "Simulation runs by terminal state",
			},
			[]string{"state"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lendvar_run_duration_seconds",
				Help:    "End-to-end simulation run duration",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		ScenariosScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lendvar_scenarios_scored_total",
				Help: "Scenarios fully scored across all runs",
			},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lendvar_step_duration_seconds",
				Help:    "Duration of each simulation step",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
			},
			[]string{"step"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lendvar_active_runs",
				Help: "Runs currently generating or scoring",
			},
		),
		FeedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lendvar_feed_requests_total",
				Help: "Outbound data feed requests by provider and result",
			},
			[]string{"provider", "result"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lendvar_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lendvar_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RunsTotal, r.RunDuration, r.ScenariosScored, r.StepDuration,
		r.ActiveRuns, r.FeedRequests, r.CacheHits, r.CacheMisses,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
