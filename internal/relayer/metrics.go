package relayer

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "relayer"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	Connected     metrics.Gauge
	Disconnects   metrics.Counter
	Heartbeats    metrics.Counter
	PacketBatches metrics.Counter
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
			Help:      "Whether the relayer stream is connected.",
		}, labels).With(labelsAndValues...),
		Disconnects: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "disconnects",
			Help:      "Number of times the relayer stream ended.",
		}, labels).With(labelsAndValues...),
		Heartbeats: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "heartbeats",
			Help:      "Number of heartbeats received from the relayer.",
		}, labels).With(labelsAndValues...),
		PacketBatches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packet_batches",
			Help:      "Number of packet batches received from the relayer.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Connected:     discard.NewGauge(),
		Disconnects:   discard.NewCounter(),
		Heartbeats:    discard.NewCounter(),
		PacketBatches: discard.NewCounter(),
	}
}
