package fetch

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "fetch"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Batches passed on to signature verification.
	BatchesForwarded metrics.Counter
	// Batches dropped while the relayer is intercepting traffic.
	BatchesDropped metrics.Counter
	// Packets dropped while the relayer is intercepting traffic.
	PacketsDropped metrics.Counter
	// Heartbeats received from the relayer.
	Heartbeats metrics.Counter
	// 1 while relayed, 0 while direct.
	Relayed metrics.Gauge
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
		BatchesForwarded: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches_forwarded",
			Help:      "Number of packet batches forwarded to signature verification.",
		}, labels).With(labelsAndValues...),
		BatchesDropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches_dropped",
			Help:      "Number of packet batches dropped while relayed.",
		}, labels).With(labelsAndValues...),
		PacketsDropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets_dropped",
			Help:      "Number of packets dropped while relayed.",
		}, labels).With(labelsAndValues...),
		Heartbeats: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "heartbeats",
			Help:      "Number of relayer heartbeats received.",
		}, labels).With(labelsAndValues...),
		Relayed: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "relayed",
			Help:      "Whether primary ingress is currently redirected to the relayer.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BatchesForwarded: discard.NewCounter(),
		BatchesDropped:   discard.NewCounter(),
		PacketsDropped:   discard.NewCounter(),
		Heartbeats:       discard.NewCounter(),
		Relayed:          discard.NewGauge(),
	}
}
