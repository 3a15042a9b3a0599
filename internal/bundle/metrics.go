package bundle

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "bundle"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Bundles recorded into an entry.
	Executed metrics.Counter
	// Bundles dropped, labeled by reason.
	Failed metrics.Counter
	// Block builder changes applied at a slot boundary.
	TipCranks metrics.Counter
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
		Executed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "executed",
			Help:      "Number of bundles recorded.",
		}, labels).With(labelsAndValues...),
		Failed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failed",
			Help:      "Number of bundles dropped.",
		}, append(labels, "reason")).With(labelsAndValues...),
		TipCranks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tip_cranks",
			Help:      "Number of block builder changes applied.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Executed:  discard.NewCounter(),
		Failed:    discard.NewCounter(),
		TipCranks: discard.NewCounter(),
	}
}
