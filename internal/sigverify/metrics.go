package sigverify

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "sigverify"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Packets that passed verification, labeled by verifier.
	PacketsVerified metrics.Counter
	// Packets rejected, labeled by verifier and reason.
	PacketsRejected metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		PacketsVerified: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets_verified",
			Help:      "Number of packets that passed signature verification.",
		}, append(labels, "verifier")).With(labelsAndValues...),
		PacketsRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets_rejected",
			Help:      "Number of packets rejected by signature verification.",
		}, append(labels, "verifier", "reason")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		PacketsVerified: discard.NewCounter(),
		PacketsRejected: discard.NewCounter(),
	}
}
