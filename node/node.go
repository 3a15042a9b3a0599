// Package node runs a TPU as a standalone service: it binds the sockets
// named in the configuration, drives the slot clock and serves metrics.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/internal/blacklist"
	"github.com/tendermint/tpu/internal/poh"
	"github.com/tendermint/tpu/internal/staked"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/libs/service"
	"github.com/tendermint/tpu/tpu"
	"github.com/tendermint/tpu/types"
)

const metricsShutdownTimeout = 5 * time.Second

// Node is the top-level service. It owns the sockets and the TPU built on
// them.
type Node struct {
	service.BaseService
	logger log.Logger

	config   *config.Config
	identity types.Identity
	sockets  *boundSockets
	contact  *contactInfo
	metrics  *tpu.Metrics

	cancel   context.CancelFunc
	recorder *service.Routine
	tpu      *tpu.TPU
	servers  *errgroup.Group
}

// New loads the identity and binds every socket. Nothing runs until Start.
func New(conf *config.Config, logger log.Logger) (*Node, error) {
	identity, err := types.LoadOrGenIdentity(conf.IdentityKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen identity %s: %w", conf.IdentityKeyFile(), err)
	}

	sockets, err := bindSockets(conf.TPU)
	if err != nil {
		return nil, err
	}

	metrics := tpu.NopMetrics()
	if conf.Instrumentation.Prometheus {
		metrics = tpu.PrometheusMetrics(conf.Instrumentation.Namespace, "moniker", conf.Moniker)
	}

	n := &Node{
		logger:   logger,
		config:   conf,
		identity: identity,
		sockets:  sockets,
		contact: newContactInfo(
			logger.With("module", "contact_info"),
			udpAddr(sockets.Transactions[0]),
			udpAddr(sockets.TransactionForwards[0]),
		),
		metrics: metrics,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart starts the slot clock, the TPU and the metrics server.
func (n *Node) OnStart(ctx context.Context) error {
	params, err := n.tpuParams()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	entries := queue.New[types.Entry](ctx)
	recorder, err := poh.NewRecorder(n.config.Banking.TicksPerSlot, n.config.Banking.TickDuration, entries)
	if err != nil {
		cancel()
		return err
	}
	params.Recorder = recorder
	params.Entries = entries.Out()

	t, err := tpu.New(ctx, params)
	if err != nil {
		cancel()
		return err
	}

	n.cancel = cancel
	n.tpu = t
	n.recorder = service.Go(n.logger, "poh", func() error { return recorder.Run(ctx) })

	var gctx context.Context
	n.servers, gctx = errgroup.WithContext(ctx)
	if n.config.Instrumentation.Prometheus {
		n.startPrometheusServer(gctx)
	}

	n.logger.Info("started tpu",
		"identity", n.identity.Pubkey.String(),
		"tpu", n.sockets.Transactions[0].LocalAddr().String(),
		"broadcast", n.sockets.Broadcast.LocalAddr().String(),
	)
	return nil
}

// OnStop cancels every stage, waits for them and closes the sockets.
func (n *Node) OnStop() {
	n.cancel()

	if err := n.tpu.Join(); err != nil {
		n.logger.Error("tpu stage failed", "err", err)
	}
	if err := n.recorder.Join(); err != nil {
		n.logger.Error("poh recorder failed", "err", err)
	}
	if err := n.servers.Wait(); err != nil {
		n.logger.Error("metrics server failed", "err", err)
	}
	if err := n.sockets.Close(); err != nil {
		n.logger.Error("error closing sockets", "err", err)
	}
}

// TPU returns the running pipeline, or nil before Start.
func (n *Node) TPU() *tpu.TPU { return n.tpu }

// Identity returns the node's identity pubkey.
func (n *Node) Identity() types.Pubkey { return n.identity.Pubkey }

// AdvertisedAddrs returns the transaction and forward addresses other nodes
// are currently told to use.
func (n *Node) AdvertisedAddrs() (tpuAddr, fwdAddr *net.UDPAddr) { return n.contact.Addrs() }

// ListenAddr returns the bound address of the transaction socket.
func (n *Node) ListenAddr() net.Addr { return n.sockets.Transactions[0].LocalAddr() }

func (n *Node) tpuParams() (tpu.Params, error) {
	cfg := n.config

	tipCfg, err := tipConfig(cfg.Tip)
	if err != nil {
		return tpu.Params{}, err
	}
	peers, err := resolvePeers(cfg.Broadcast.Peers)
	if err != nil {
		return tpu.Params{}, err
	}
	receiver, err := shredReceiver(cfg.Broadcast.ShredReceiverAddress)
	if err != nil {
		return tpu.Params{}, err
	}
	bl, err := blacklist.Load()
	if err != nil {
		return tpu.Params{}, err
	}
	reserved := cfg.Banking.ReservedTicks()

	localTPU, localFwd := n.contact.Addrs()
	return tpu.Params{
		Logger:   n.logger.With("module", "tpu"),
		Identity: n.identity.PrivKey,
		Sockets:  n.sockets.Sockets,

		UDPEnabled: cfg.TPU.UDPEnabled,
		Coalesce:   cfg.TPU.Coalesce,
		QUIC:       quicLimits(cfg.TPU),

		HeartbeatTimeout: cfg.TPU.HeartbeatTimeout,
		Advertiser:       n.contact,
		LocalTPU:         localTPU,
		LocalTPUForward:  localFwd,

		BlockCostLimit:         cfg.Banking.BlockCostLimit,
		PreallocatedBundleCost: cfg.Banking.PreallocatedBundleCost,
		ReservedTicks:          &reserved,
		TickInterval:           cfg.Banking.TickDuration,

		Blacklist: bl,

		StakeSource:           staked.StaticSource{},
		StakedOverridesPath:   cfg.StakedNodes.OverridesPath(),
		StakedRefreshInterval: cfg.StakedNodes.RefreshInterval,

		Relayer:     relayerConfig(cfg.Relayer),
		BlockEngine: blockEngineConfig(cfg.BlockEngine),
		Tip:         tipCfg,

		BroadcastPeers: peers,
		ShredReceiver:  receiver,

		Tracer: tpu.TracerParams{
			Enabled:  cfg.Tracer.Enabled,
			Path:     cfg.Tracer.TraceFile(),
			MaxSize:  cfg.Tracer.MaxFileSize,
			MaxFiles: cfg.Tracer.MaxFiles,
		},

		Metrics: n.metrics,
	}, nil
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on the configured address. It shuts down with ctx.
func (n *Node) startPrometheusServer(ctx context.Context) {
	srv := &http.Server{
		Addr: n.config.Instrumentation.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: 3},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	n.servers.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("prometheus server: %w", err)
		}
		return nil
	})
	n.servers.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

func udpAddr(conn net.PacketConn) *net.UDPAddr {
	addr, _ := conn.LocalAddr().(*net.UDPAddr)
	return addr
}
