// Package observability holds the Prometheus metrics for the trend
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// trend pipeline.
type Metrics struct {
	GridsQueried     prometheus.Counter
	DailyAggregates  prometheus.Counter
	SeasonAggregates prometheus.Counter
	PixelFits        prometheus.Counter
	ExportsTotal     prometheus.Counter
	PipelineRunning  prometheus.Gauge
	FitDuration      prometheus.Histogram
	SamplesPerFit    prometheus.Histogram
	StageErrors      *prometheus.CounterVec // labels: stage={query,aggregate,fit,export}
	SeasonRunsTotal  *prometheus.CounterVec // labels: outcome={ok,skipped,error}
}

// NewMetrics creates and registers all pipeline metrics with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GridsQueried,
		m.DailyAggregates,
		m.SeasonAggregates,
		m.PixelFits,
		m.ExportsTotal,
		m.PipelineRunning,
		m.FitDuration,
		m.SamplesPerFit,
		m.StageErrors,
		m.SeasonRunsTotal,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GridsQueried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "grids_queried_total",
			Help:      "Total raster grids returned by source queries.",
		}),
		DailyAggregates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "daily_aggregates_total",
			Help:      "Total per-day ensemble aggregates computed.",
		}),
		SeasonAggregates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "season_aggregates_total",
			Help:      "Total per-year seasonal aggregates computed.",
		}),
		PixelFits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "pixel_fits_total",
			Help:      "Total per-pixel, per-response least-squares fits evaluated.",
		}),
		ExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "exports_total",
			Help:      "Total coefficient grids exported.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climatrend",
			Name:      "pipeline_running",
			Help:      "1 while an analysis run is active, 0 otherwise.",
		}),
		FitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climatrend",
			Name:      "fit_duration_seconds",
			Help:      "Duration of one season's per-pixel regression.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SamplesPerFit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climatrend",
			Name:      "samples_per_fit",
			Help:      "Number of yearly samples entering one season's regression.",
			Buckets:   []float64{2, 5, 10, 20, 30, 50, 75, 100},
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "stage_errors_total",
			Help:      "Failures per pipeline stage.",
		}, []string{"stage"}),
		SeasonRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climatrend",
			Name:      "season_runs_total",
			Help:      "Completed dataset/season analyses by outcome.",
		}, []string{"outcome"}),
	}
}
