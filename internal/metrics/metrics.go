// Package metrics exposes the per-year tallies as Prometheus collectors.
//
// Metrics implements engine.Recorder: the scheduler hands it every flushed
// YearResult and the duration of every phase. Collectors are registered on a
// dedicated registry so tests and repeated runs never collide on the global one.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/microsim/internal/results"
)

const namespace = "microsim"

// Metrics holds the simulation collectors.
type Metrics struct {
	registry *prometheus.Registry

	attempted     *prometheus.CounterVec
	succeeded     *prometheus.CounterVec
	softFailures  *prometheus.CounterVec
	summaries     *prometheus.GaugeVec
	years         prometheus.Counter
	lastYear      prometheus.Gauge
	phaseDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_attempted_total",
			Help:      "Events dispatched, by kind.",
		}, []string{"kind"}),
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_succeeded_total",
			Help:      "Events that changed state, by kind.",
		}, []string{"kind"}),
		softFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_failures_total",
			Help:      "Expected failures to satisfy an event, by name.",
		}, []string{"name"}),
		summaries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summary",
			Help:      "Named year-end summary values of the last simulated year.",
		}, []string{"name"}),
		years: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "years_total",
			Help:      "Simulated years flushed to the results sink.",
		}),
		lastYear: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_year",
			Help:      "The most recently finished simulation year.",
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each scheduler phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"phase"}),
	}

	for _, c := range []prometheus.Collector{
		m.attempted, m.succeeded, m.softFailures, m.summaries,
		m.years, m.lastYear, m.phaseDuration,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveYear folds one year's result into the collectors.
func (m *Metrics) ObserveYear(r results.YearResult) {
	for _, t := range r.Events {
		kind := t.Kind.String()
		m.attempted.WithLabelValues(kind).Add(float64(t.Attempted))
		m.succeeded.WithLabelValues(kind).Add(float64(t.Succeeded))
	}
	for _, f := range r.SoftFailures {
		m.softFailures.WithLabelValues(f.Name).Add(float64(f.Value))
	}
	for _, s := range r.Summaries {
		m.summaries.WithLabelValues(s.Name).Set(float64(s.Value))
	}
	m.years.Inc()
	m.lastYear.Set(float64(r.Year))
}

// ObservePhase records the duration of one scheduler phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// WriteFile dumps the current values in the Prometheus text format, for
// pickup by a node-exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
