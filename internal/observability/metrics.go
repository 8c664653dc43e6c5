package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// export pipeline.
type Metrics struct {
	VariablesLoaded prometheus.Counter
	UnitConversions prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Per-stage outcomes; stage is one of load, merge, collapse, export, notify.
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Store output metrics.
	ChunksWritten     prometheus.Counter
	StoreBytesWritten prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.VariablesLoaded,
		m.UnitConversions,
		m.PipelineRunning,
		m.StageDuration,
		m.StageFailures,
		m.ChunksWritten,
		m.StoreBytesWritten,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		VariablesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "era5_export",
			Name:      "variables_loaded_total",
			Help:      "Variables successfully loaded from the source archive.",
		}),
		UnitConversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "era5_export",
			Name:      "unit_conversions_total",
			Help:      "Unit conversions applied during normalization.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "era5_export",
			Name:      "pipeline_running",
			Help:      "1 while an export run is active, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "era5_export",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "era5_export",
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "era5_export",
			Name:      "chunks_written_total",
			Help:      "Compressed chunks written to the destination store.",
		}),
		StoreBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "era5_export",
			Name:      "store_bytes_written_total",
			Help:      "Compressed bytes written to the destination store.",
		}),
	}
}
