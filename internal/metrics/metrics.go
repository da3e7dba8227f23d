// Package metrics counts what a pipeline run loaded, skipped and extracted.
// Counters live in a per-run registry that can be written out in the
// Prometheus text format for a node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	files         *prometheus.CounterVec
	records       *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	unresolved    *prometheus.CounterVec
	extractions   *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New creates a fresh registry with all run metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// files counts source files by input and outcome
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_source_files_total",
			Help: "Source files processed by input and result",
		}, []string{"source", "result"}),

		// records counts loaded records by kind
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_records_total",
			Help: "Records loaded by kind",
		}, []string{"kind"}),

		duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_duplicate_keys_total",
			Help: "Duplicate keys overwritten by a later record",
		}, []string{"source"}),

		unresolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_unresolved_references_total",
			Help: "Nodule references missing from the image index",
		}, []string{"level"}), // "study", "series" or "image"

		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_slice_extractions_total",
			Help: "Slice extractions by result",
		}, []string{"result"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodules_cache_lookups_total",
			Help: "Stage cache lookups by stage and result",
		}, []string{"stage", "result"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodules_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45min
		}, []string{"stage"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// File records one processed source file.
func (m *Metrics) File(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.files.WithLabelValues(source, result).Inc()
}

// Records adds n loaded records of a kind.
func (m *Metrics) Records(kind string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(kind).Add(float64(n))
}

// Duplicate records a last-write-wins overwrite.
func (m *Metrics) Duplicate(source string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(source).Inc()
}

// Unresolved records an image index miss.
func (m *Metrics) Unresolved(level string) {
	if m == nil {
		return
	}
	m.unresolved.WithLabelValues(level).Inc()
}

// Extraction records the outcome of one slice.
func (m *Metrics) Extraction(result string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(result).Inc()
}

// CacheLookup records a stage cache hit or miss.
func (m *Metrics) CacheLookup(stage string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(stage, result).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Value returns the current value of the counter with the given name and
// label values, or 0 when it has not been touched.
func (m *Metrics) Value(name string, labels map[string]string) float64 {
	if m == nil {
		return 0
	}
	families, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	return 0
}
