package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// Metrics exposes the outcome of the most recent run in Prometheus form.
type Metrics struct {
	registry *prometheus.Registry
	results  *prometheus.GaugeVec
	skipped  *prometheus.GaugeVec
	targets  *prometheus.GaugeVec
	duration prometheus.Gauge
	partial  prometheus.Gauge
}

// NewMetrics creates the run metrics on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dirhealth_results",
			Help: "Results of the last run by category and status, before filtering.",
		}, []string{"category", "status"}),
		skipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dirhealth_skipped",
			Help: "Skipped (target, category) pairs of the last run by category.",
		}, []string{"category"}),
		targets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dirhealth_target_status",
			Help: "Rolled-up target status of the last run (1 for the current status).",
		}, []string{"target", "status"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dirhealth_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
		partial: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dirhealth_run_partial",
			Help: "Whether the last run was cancelled before completing (1=partial).",
		}),
	}
	m.registry.MustRegister(m.results, m.skipped, m.targets, m.duration, m.partial)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// record replaces the metrics with the outcome of rep. all is the unfiltered
// Result list, since rep.Results may omit Healthy Results. Every category of
// the run is exported, with zero counts where nothing was produced.
func (m *Metrics) record(rep *Report, all []check.Result) {
	m.results.Reset()
	m.skipped.Reset()
	m.targets.Reset()

	for _, c := range rep.Categories {
		for _, s := range []check.Status{check.StatusHealthy, check.StatusWarning, check.StatusCritical, check.StatusUnknown} {
			m.results.WithLabelValues(string(c), string(s))
		}
		m.skipped.WithLabelValues(string(c))
	}
	for _, res := range all {
		m.results.WithLabelValues(string(res.Category), string(res.Status)).Inc()
	}
	for _, t := range rep.Summary.Targets {
		m.targets.WithLabelValues(t.Target, string(t.Status)).Set(1)
	}
	for _, s := range rep.Skipped {
		m.skipped.WithLabelValues(string(s.Category)).Inc()
	}
	m.duration.Set(rep.Elapsed.Seconds())
	if rep.Partial {
		m.partial.Set(1)
	} else {
		m.partial.Set(0)
	}
}

// WriteTextfile writes the metrics in the text exposition format to path,
// for collection by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
