package autoupdate

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for one engine run on its own registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	packages *prometheus.CounterVec
	polls    prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates and registers the run metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alpa_autoupdate_packages_total",
			Help: "Packages processed, by final state.",
		}, []string{"state"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alpa_autoupdate_check_run_polls_total",
			Help: "Check-run status requests made.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alpa_autoupdate_package_duration_seconds",
			Help:    "Time from the start of a package check to its final state.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}),
	}
	m.registry.MustRegister(m.packages, m.polls, m.duration)
	return m
}

// Registry returns the registry holding the run metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observePoll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) observeOutcome(o *Outcome) {
	if m == nil || o == nil {
		return
	}
	m.packages.WithLabelValues(string(o.State)).Inc()
	m.duration.Observe(o.DurationSeconds)
}

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
