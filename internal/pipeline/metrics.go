package pipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics accumulates batch-job counters for a run. It is written once, after
// all regions finish, in the node exporter textfile format.
type Metrics struct {
	reg *prometheus.Registry

	regions    *prometheus.CounterVec
	truthRows  prometheus.Counter
	objects    prometheus.Counter
	unique     prometheus.Counter
	duplicates prometheus.Counter
	unmatched  prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics creates a Metrics on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truthmatch_regions_total",
			Help: "Regions processed, by status.",
		}, []string{"status"}),
		truthRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truthmatch_truth_rows_total",
			Help: "Truth rows merged or loaded.",
		}),
		objects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truthmatch_objects_total",
			Help: "Objects matched against truth tables.",
		}),
		unique: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truthmatch_unique_matches_total",
			Help: "Truth rows with a unique closest object.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truthmatch_duplicate_claims_total",
			Help: "Object claims that lost to a closer object.",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truthmatch_unmatched_truth_rows_total",
			Help: "Truth rows no object claimed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "truthmatch_region_duration_seconds",
			Help:    "Wall time per region.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	m.reg.MustRegister(m.regions, m.truthRows, m.objects, m.unique, m.duplicates, m.unmatched, m.duration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe adds one region result.
func (m *Metrics) Observe(r RegionResult) {
	m.duration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		m.regions.WithLabelValues("failed").Inc()
		return
	}
	m.regions.WithLabelValues("ok").Inc()
	m.truthRows.Add(float64(r.Rows))
	if !r.Matched {
		return
	}
	m.objects.Add(float64(r.Stats.Objects))
	m.unique.Add(float64(r.Stats.Unique))
	m.duplicates.Add(float64(r.Stats.Duplicates))
	m.unmatched.Add(float64(r.Stats.Unmatched))
}

// WriteTextfile writes the metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
