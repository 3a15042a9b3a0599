package broadcast

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "broadcast"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Entries shredded.
	Entries metrics.Counter
	// Shreds written, per destination kind (peer, shred_receiver).
	Shreds metrics.Counter
	// Failed socket writes.
	SendErrors metrics.Counter
	// Slot of the last shredded entry.
	Slot metrics.Gauge
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
		Entries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "entries",
			Help:      "Number of entries shredded.",
		}, labels).With(labelsAndValues...),
		Shreds: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "shreds",
			Help:      "Number of shreds sent.",
		}, append(labels, "destination")).With(labelsAndValues...),
		SendErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "send_errors",
			Help:      "Number of failed shred writes.",
		}, labels).With(labelsAndValues...),
		Slot: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "slot",
			Help:      "Slot of the last broadcast entry.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Entries:    discard.NewCounter(),
		Shreds:     discard.NewCounter(),
		SendErrors: discard.NewCounter(),
		Slot:       discard.NewGauge(),
	}
}
