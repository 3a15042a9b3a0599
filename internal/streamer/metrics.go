package streamer

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "streamer"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Packets received, labeled by transport and class.
	Packets metrics.Counter
	// Packets dropped for exceeding the packet size.
	OversizedPackets metrics.Counter
	// Batches handed downstream.
	Batches metrics.Counter
	// Connections accepted, labeled by server and staked=true/false.
	ConnectionsAccepted metrics.Counter
	// Connections refused, labeled by server and reason.
	ConnectionsRefused metrics.Counter
	// Currently open connections, labeled by server.
	OpenConnections metrics.Gauge
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
		Packets: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets",
			Help:      "Number of packets received.",
		}, append(labels, "transport", "class")).With(labelsAndValues...),
		OversizedPackets: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "oversized_packets",
			Help:      "Number of packets dropped for exceeding the packet size.",
		}, append(labels, "transport")).With(labelsAndValues...),
		Batches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches",
			Help:      "Number of packet batches sent downstream.",
		}, append(labels, "transport", "class")).With(labelsAndValues...),
		ConnectionsAccepted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connections_accepted",
			Help:      "Number of QUIC connections accepted.",
		}, append(labels, "server", "staked")).With(labelsAndValues...),
		ConnectionsRefused: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connections_refused",
			Help:      "Number of QUIC connections refused.",
		}, append(labels, "server", "reason")).With(labelsAndValues...),
		OpenConnections: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "open_connections",
			Help:      "Number of open QUIC connections.",
		}, append(labels, "server")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Packets:             discard.NewCounter(),
		OversizedPackets:    discard.NewCounter(),
		Batches:             discard.NewCounter(),
		ConnectionsAccepted: discard.NewCounter(),
		ConnectionsRefused:  discard.NewCounter(),
		OpenConnections:     discard.NewGauge(),
	}
}
