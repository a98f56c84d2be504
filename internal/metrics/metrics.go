// Package metrics holds the Prometheus collectors updated by discovery,
// downloads and extension actions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "extstatus"

// Outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
	ResultCached  = "cached"
)

// Registry collects every extstatus metric. It is separate from the
// Prometheus default registry so embedding programs choose what to expose.
var Registry = prometheus.NewRegistry()

var (
	// DiscoveryRuns counts outdated discovery generations by result.
	DiscoveryRuns = mustRegisterCounterVec("outdated", "discovery_runs_total",
		"Outdated discovery generations by result.", "result")

	// DiscoveryDuration observes how long each discovery generation took.
	DiscoveryDuration = mustRegisterHistogram("outdated", "discovery_duration_seconds",
		"Wall-clock duration of outdated discovery.", prometheus.DefBuckets)

	// TarballFetches counts published-contents lookups by result.
	TarballFetches = mustRegisterCounterVec("registry", "tarball_fetches_total",
		"Published package contents lookups by result.", "result")

	// BreakerTrips counts circuit breaker openings per registry host.
	BreakerTrips = mustRegisterCounterVec("fetch", "breaker_trips_total",
		"Registry circuit breaker openings.", "host")

	// Actions counts install, uninstall, enable and disable requests.
	Actions = mustRegisterCounterVec("status", "actions_total",
		"Extension actions by action and result.", "action", "result")
)

func mustRegisterCounterVec(component, name, help string, labelNames ...string) *prometheus.CounterVec {
	m := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	}, labelNames)
	Registry.MustRegister(m)
	return m
}

func mustRegisterHistogram(component, name, help string, buckets []float64) prometheus.Histogram {
	m := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	Registry.MustRegister(m)
	return m
}
