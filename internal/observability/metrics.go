// Package observability collects gateway runtime metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway activity:
//   - Socket connection lifecycle and rejected upgrades
//   - Run dispatch volume and latency
//   - Security events by audit type
//   - Event feed throughput and detected gaps
//   - Sandbox spec builds, including isolation rejections
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.RunsStarted.Inc()
//	defer metrics.RunDuration.Observe(time.Since(start).Seconds())
type Metrics struct {
	// ActiveConnections gauges currently open socket connections.
	ActiveConnections prometheus.Gauge

	// ConnectionsTotal counts accepted socket connections.
	ConnectionsTotal prometheus.Counter

	// ConnectionsRejected counts refused upgrades.
	// Labels: reason (origin|auth|rate_limited)
	ConnectionsRejected *prometheus.CounterVec

	// EventsEmitted counts feed events sent to surfaces.
	// Labels: type (health|tick|chat|agent|seq_gap)
	EventsEmitted *prometheus.CounterVec

	// SeqGaps counts feed discontinuities signaled to surfaces.
	SeqGaps prometheus.Counter

	// RunsStarted counts dispatched runs.
	RunsStarted prometheus.Counter

	// RunsActive gauges runs currently in flight.
	RunsActive prometheus.Gauge

	// RunDuration measures run wall time in seconds.
	// Buckets: 0.1s .. 300s
	RunDuration prometheus.Histogram

	// SecurityEvents counts audit entries by event type.
	// Labels: type
	SecurityEvents *prometheus.CounterVec

	// SandboxBuilds counts sandbox spec compilations.
	// Labels: status (ok|rejected)
	SandboxBuilds *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all gateway metrics. A nil registerer
// uses the Prometheus default registry; tests pass their own so they can
// run in parallel without collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anima_connections_active",
			Help: "Number of currently open socket connections",
		}),

		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "anima_connections_total",
			Help: "Total number of accepted socket connections",
		}),

		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_connections_rejected_total",
				Help: "Total number of refused socket upgrades by reason",
			},
			[]string{"reason"},
		),

		EventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_events_emitted_total",
				Help: "Total feed events sent to surfaces by type",
			},
			[]string{"type"},
		),

		SeqGaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "anima_seq_gaps_total",
			Help: "Total feed discontinuities signaled to surfaces",
		}),

		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "anima_runs_started_total",
			Help: "Total dispatched agent runs",
		}),

		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anima_runs_active",
			Help: "Number of agent runs currently in flight",
		}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "anima_run_duration_seconds",
			Help:    "Agent run wall time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		SecurityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_security_events_total",
				Help: "Total audit entries recorded by event type",
			},
			[]string{"type"},
		),

		SandboxBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_sandbox_builds_total",
				Help: "Total sandbox spec compilations by outcome",
			},
			[]string{"status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anima_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}
