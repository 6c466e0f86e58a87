// Package metrics exposes Prometheus collectors for the module
// provisioning lifecycle and a small HTTP server publishing them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the provisioner-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	moduleBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioner",
			Subsystem: "modules",
			Name:      "builds_total",
			Help:      "Total number of module builds.",
		},
		[]string{"type", "result"},
	)

	buildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provisioner",
			Subsystem: "modules",
			Name:      "build_duration_seconds",
			Help:      "Duration of successful module builds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
		[]string{"type"},
	)

	moduleDeployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioner",
			Subsystem: "modules",
			Name:      "deployments_total",
			Help:      "Total number of module deployments.",
		},
		[]string{"type", "result"},
	)

	moduleAttestations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioner",
			Subsystem: "modules",
			Name:      "attestations_total",
			Help:      "Total number of module attestations.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		moduleBuilds,
		buildDuration,
		moduleDeployments,
		moduleAttestations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordBuild records a finished module build. The duration is only
// observed for successful builds since failures abort at arbitrary points.
func RecordBuild(moduleType string, duration time.Duration, err error) {
	moduleBuilds.WithLabelValues(moduleType, resultLabel(err)).Inc()
	if err == nil {
		buildDuration.WithLabelValues(moduleType).Observe(duration.Seconds())
	}
}

// RecordDeployment records a finished module deployment.
func RecordDeployment(moduleType string, err error) {
	moduleDeployments.WithLabelValues(moduleType, resultLabel(err)).Inc()
}

// RecordAttestation records a finished module attestation.
func RecordAttestation(moduleType string, err error) {
	moduleAttestations.WithLabelValues(moduleType, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
