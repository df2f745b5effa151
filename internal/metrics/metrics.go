// Package metrics provides Prometheus metrics for monitoring lambdad builds.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram buckets for build durations, ranging from 1s to 30m.
var BuildBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (

	// Counts function builds by runtime and outcome.
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdad_builds_total",
			Help: "Function builds",
		},
		[]string{"runtime", "status"},
	)

	// Records function build duration in seconds by runtime.
	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lambdad_build_duration_seconds",
			Help:    "Function build duration",
			Buckets: BuildBuckets,
		},
		[]string{"runtime"},
	)

	// Tracks the number of sandboxes currently running.
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lambdad_sandboxes_active",
			Help: "Active build sandboxes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BuildsTotal,
		BuildDuration,
		SandboxesActive,
	)
}

// Returns an HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
