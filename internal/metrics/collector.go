package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"imfitboot/domain/core"
)

// Collector records batch evaluation metrics on its own registry. The CLI
// is a one-shot process, so metrics are written out with WriteTextfile for a
// node_exporter textfile collector rather than served.
type Collector struct {
	registry *prometheus.Registry

	rows           *prometheus.CounterVec
	rowDuration    prometheus.Histogram
	bootstrapTrial prometheus.Counter
	runDuration    *prometheus.HistogramVec
	lastMean       *prometheus.GaugeVec
}

// NewCollector creates a collector with all metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imfitboot_rows_evaluated_total",
				Help: "Ensemble rows evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		rowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imfitboot_row_duration_seconds",
				Help:    "Derived-quantity evaluation latency per row",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
			},
		),
		bootstrapTrial: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "imfitboot_bootstrap_trials_total",
				Help: "Bootstrap trials returned by the resampler",
			},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imfitboot_stage_duration_seconds",
				Help:    "Pipeline stage latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		lastMean: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imfitboot_last_mean",
				Help: "Mean of the most recent distribution, by quantity",
			},
			[]string{"quantity"},
		),
	}
	c.registry.MustRegister(c.rows, c.rowDuration, c.bootstrapTrial, c.runDuration, c.lastMean)
	return c
}

// ObserveRow records one evaluated row. Failed rows are labelled with their error kind.
func (c *Collector) ObserveRow(err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(core.KindOf(err))
	}
	c.rows.WithLabelValues(outcome).Inc()
	c.rowDuration.Observe(elapsed.Seconds())
}

// ObserveTrials records the number of bootstrap rows obtained
func (c *Collector) ObserveTrials(n int) {
	c.bootstrapTrial.Add(float64(n))
}

// ObserveStage records how long a pipeline stage took
func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	c.runDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// SetMean publishes the latest distribution mean for a quantity
func (c *Collector) SetMean(quantity string, mean float64) {
	c.lastMean.WithLabelValues(quantity).Set(mean)
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics in the Prometheus text format. The file
// is written to a temporary name and renamed into place.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
