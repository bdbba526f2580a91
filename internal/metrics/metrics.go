// Package metrics holds the Prometheus collectors for confound loading and
// connectivity runs.
//
// Runs are batch jobs, so metrics are not served over HTTP. WriteTextfile
// dumps the registry in the text exposition format for the node exporter
// textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connectivity"

// Load results used as the "result" label of ConfoundLoads
const (
	ResultOK          = "ok"
	ResultFileAccess  = "file_access"
	ResultKeyNotFound = "key_not_found"
	ResultShape       = "shape"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	ConfoundLoads       *prometheus.CounterVec
	ConfoundLoadSeconds prometheus.Histogram

	SubjectsProcessed *prometheus.CounterVec
	SubjectSeconds    prometheus.Histogram
	RunSeconds        prometheus.Gauge
}

// NewRegistry creates and registers all collectors on a private registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ConfoundLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confound_loads_total",
			Help:      "Confound matrix loads by result.",
		}, []string{"result"}),
		ConfoundLoadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confound_load_seconds",
			Help:      "Time spent reading and reshaping a confound matrix.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		SubjectsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subjects_processed_total",
			Help:      "Subjects whose connectivity matrix was computed, by variant.",
		}, []string{"variant"}),
		SubjectSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subject_extract_seconds",
			Help:      "Time spent loading and extracting one subject.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		RunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last pipeline run.",
		}),
	}

	r.reg.MustRegister(
		r.ConfoundLoads,
		r.ConfoundLoadSeconds,
		r.SubjectsProcessed,
		r.SubjectSeconds,
		r.RunSeconds,
	)

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveConfoundLoad records one load. Safe on a nil Registry.
func (r *Registry) ObserveConfoundLoad(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.ConfoundLoads.WithLabelValues(result).Inc()
	r.ConfoundLoadSeconds.Observe(d.Seconds())
}

// ObserveSubject records one extracted subject. Safe on a nil Registry.
func (r *Registry) ObserveSubject(d time.Duration) {
	if r == nil {
		return
	}
	r.SubjectSeconds.Observe(d.Seconds())
}

// IncSubject counts a finished connectivity matrix. Safe on a nil Registry.
func (r *Registry) IncSubject(variant string) {
	if r == nil {
		return
	}
	r.SubjectsProcessed.WithLabelValues(variant).Inc()
}

// SetRunDuration records the wall time of a run. Safe on a nil Registry.
func (r *Registry) SetRunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.RunSeconds.Set(d.Seconds())
}

// WriteTextfile writes all metrics to path atomically. A nil Registry
// writes nothing.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
