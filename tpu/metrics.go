package tpu

import (
	"github.com/tendermint/tpu/internal/banking"
	"github.com/tendermint/tpu/internal/blockengine"
	"github.com/tendermint/tpu/internal/broadcast"
	"github.com/tendermint/tpu/internal/bundle"
	"github.com/tendermint/tpu/internal/fetch"
	"github.com/tendermint/tpu/internal/relayer"
	"github.com/tendermint/tpu/internal/sigverify"
	"github.com/tendermint/tpu/internal/streamer"
)

// Metrics gathers the metrics of every stage.
type Metrics struct {
	Streamer    *streamer.Metrics
	Fetch       *fetch.Metrics
	SigVerify   *sigverify.Metrics
	Banking     *banking.Metrics
	Bundle      *bundle.Metrics
	Relayer     *relayer.Metrics
	BlockEngine *blockengine.Metrics
	Broadcast   *broadcast.Metrics
}

// PrometheusMetrics returns Metrics for every stage, registered with the
// default Prometheus registry.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	return &Metrics{
		Streamer:    streamer.PrometheusMetrics(namespace, labelsAndValues...),
		Fetch:       fetch.PrometheusMetrics(namespace, labelsAndValues...),
		SigVerify:   sigverify.PrometheusMetrics(namespace, labelsAndValues...),
		Banking:     banking.PrometheusMetrics(namespace, labelsAndValues...),
		Bundle:      bundle.PrometheusMetrics(namespace, labelsAndValues...),
		Relayer:     relayer.PrometheusMetrics(namespace, labelsAndValues...),
		BlockEngine: blockengine.PrometheusMetrics(namespace, labelsAndValues...),
		Broadcast:   broadcast.PrometheusMetrics(namespace, labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Streamer:    streamer.NopMetrics(),
		Fetch:       fetch.NopMetrics(),
		SigVerify:   sigverify.NopMetrics(),
		Banking:     banking.NopMetrics(),
		Bundle:      bundle.NopMetrics(),
		Relayer:     relayer.NopMetrics(),
		BlockEngine: blockengine.NopMetrics(),
		Broadcast:   broadcast.NopMetrics(),
	}
}
