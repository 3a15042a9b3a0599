package blockengine

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "block_engine"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	Connected       metrics.Gauge
	Disconnects     metrics.Counter
	PacketBatches   metrics.Counter
	Bundles         metrics.Counter
	BundlesRejected metrics.Counter
	FeeInfoUpdates  metrics.Counter
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
		Connected: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connected",
			Help:      "Whether the block engine stream is connected.",
		}, labels).With(labelsAndValues...),
		Disconnects: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "disconnects",
			Help:      "Number of times the block engine stream ended.",
		}, labels).With(labelsAndValues...),
		PacketBatches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packet_batches",
			Help:      "Number of packet batches received from the block engine.",
		}, labels).With(labelsAndValues...),
		Bundles: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bundles",
			Help:      "Number of verified bundles received from the block engine.",
		}, labels).With(labelsAndValues...),
		BundlesRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bundles_rejected",
			Help:      "Number of bundles dropped for failing verification.",
		}, labels).With(labelsAndValues...),
		FeeInfoUpdates: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fee_info_updates",
			Help:      "Number of block builder fee updates sent to the block engine.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Connected:       discard.NewGauge(),
		Disconnects:     discard.NewCounter(),
		PacketBatches:   discard.NewCounter(),
		Bundles:         discard.NewCounter(),
		BundlesRejected: discard.NewCounter(),
		FeeInfoUpdates:  discard.NewCounter(),
	}
}
