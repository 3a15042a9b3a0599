package banking

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "banking"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Transactions admitted into the block, by kind (vote, non_vote).
	Admitted metrics.Counter
	// Transactions rejected for referencing a blacklisted account.
	Blacklisted metrics.Counter
	// Transactions deferred to a later tick, by reason.
	Deferred metrics.Counter
	// Transactions dropped, by reason.
	Dropped metrics.Counter
	// Entries recorded.
	Entries metrics.Counter
	// Size of the deferred buffer.
	DeferredSize metrics.Gauge
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
		Admitted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "admitted",
			Help:      "Number of transactions admitted.",
		}, append(labels, "kind")).With(labelsAndValues...),
		Blacklisted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blacklisted",
			Help:      "Number of transactions referencing a blacklisted account.",
		}, labels).With(labelsAndValues...),
		Deferred: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "deferred",
			Help:      "Number of transactions deferred to a later tick.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Dropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped",
			Help:      "Number of transactions dropped.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Entries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "entries",
			Help:      "Number of entries recorded.",
		}, labels).With(labelsAndValues...),
		DeferredSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "deferred_size",
			Help:      "Number of transactions waiting for a retry.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Admitted:     discard.NewCounter(),
		Blacklisted:  discard.NewCounter(),
		Deferred:     discard.NewCounter(),
		Dropped:      discard.NewCounter(),
		Entries:      discard.NewCounter(),
		DeferredSize: discard.NewGauge(),
	}
}
