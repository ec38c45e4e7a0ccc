package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Set(3)
	metrics.ConnectionsRejected.WithLabelValues("origin").Inc()
	metrics.EventsEmitted.WithLabelValues("chat").Add(2)
	metrics.SeqGaps.Inc()
	metrics.RunsStarted.Inc()
	metrics.RunsActive.Inc()
	metrics.RunDuration.Observe(1.5)
	metrics.SecurityEvents.WithLabelValues("rate_limited").Inc()
	metrics.SandboxBuilds.WithLabelValues("rejected").Inc()
	metrics.HTTPRequestDuration.WithLabelValues("GET", "/health", "200").Observe(0.002)

	if got := testutil.ToFloat64(metrics.ConnectionsTotal); got != 1 {
		t.Errorf("connections total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveConnections); got != 3 {
		t.Errorf("active connections = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.EventsEmitted.WithLabelValues("chat")); got != 2 {
		t.Errorf("events emitted = %v, want 2", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RunsStarted.Inc()
	if got := testutil.ToFloat64(b.RunsStarted); got != 0 {
		t.Errorf("registries shared state: %v", got)
	}
}
