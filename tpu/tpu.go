// Package tpu wires the transaction processing pipeline: transports, the
// interception gate, signature verification, the banking and bundle
// stages, and broadcast.
package tpu

import (
	"context"
	"net"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/tendermint/tpu/internal/banking"
	"github.com/tendermint/tpu/internal/blacklist"
	"github.com/tendermint/tpu/internal/blockengine"
	"github.com/tendermint/tpu/internal/broadcast"
	"github.com/tendermint/tpu/internal/bundle"
	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/internal/entrynotify"
	"github.com/tendermint/tpu/internal/fetch"
	"github.com/tendermint/tpu/internal/relayer"
	"github.com/tendermint/tpu/internal/sigverify"
	"github.com/tendermint/tpu/internal/staked"
	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/internal/tracer"
	"github.com/tendermint/tpu/internal/votelistener"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/libs/service"
	"github.com/tendermint/tpu/types"
)

const defaultStakedRefreshInterval = 10 * time.Second

// TPU owns every stage of the pipeline.
type TPU struct {
	logger log.Logger
	cancel context.CancelFunc

	stages    []*service.Routine
	broadcast *service.Routine
	notifier  *service.Routine
	tracer    *tracer.Thread

	fetchManager *fetch.Manager
	feeInfo      *tip.FeeInfoCell
	tipManager   *tip.Manager
	blacklist    *blacklist.Set
	schedule     cost.Schedule
	stakedNodes  *staked.Registry
}

type stage struct {
	name string
	run  func(context.Context) error
}

// New allocates every queue, builds every stage and starts them. Nothing is
// started unless every stage could be built: invalid parameters yield a
// ConfigurationError and failing endpoints a TransportError. The stages
// run until ctx is canceled.
func New(ctx context.Context, p Params) (*TPU, error) {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Metrics == nil {
		p.Metrics = NopMetrics()
	}
	if p.Recorder == nil || p.Entries == nil {
		return nil, types.ConfigurationError{Param: "recorder", Reason: "a recorder and its entry channel are required"}
	}
	if len(p.Identity) != ed25519.PrivateKeySize {
		return nil, types.ConfigurationError{Param: "identity", Reason: "missing or malformed identity key"}
	}
	if p.Sockets.Broadcast == nil {
		return nil, types.ConfigurationError{Param: "broadcast_socket", Reason: "required"}
	}
	if p.PreallocatedBundleCost > p.BlockCostLimit {
		return nil, types.ConfigurationError{Param: "preallocated_bundle_cost", Reason: "exceeds the block cost limit"}
	}

	ticksPerSlot := p.Recorder.TicksPerSlot()
	reservedTicks := cost.DefaultReservedTicks(ticksPerSlot)
	if p.ReservedTicks != nil {
		reservedTicks = *p.ReservedTicks
	}
	schedule, err := cost.NewSchedule(ticksPerSlot, reservedTicks, p.PreallocatedBundleCost)
	if err != nil {
		return nil, err
	}
	if p.TickInterval <= 0 {
		p.TickInterval = p.Recorder.TickDuration()
	}
	if p.StakedRefreshInterval <= 0 {
		p.StakedRefreshInterval = defaultStakedRefreshInterval
	}
	if p.StakeSource == nil {
		p.StakeSource = staked.StaticSource{}
	}
	if p.Relayer == nil {
		p.Relayer = relayer.NewConfig(relayer.Settings{})
	}
	if p.BlockEngine == nil {
		p.BlockEngine = blockengine.NewConfig(blockengine.Settings{})
	}

	tipManager := tip.NewManager(p.Tip)
	bl := p.Blacklist
	if bl == nil {
		if bl, err = blacklist.Load(); err != nil {
			return nil, err
		}
	}
	if program := tipManager.TipPaymentProgramID(); !program.IsZero() {
		bl = bl.With(program)
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &TPU{
		logger:      p.Logger,
		cancel:      cancel,
		feeInfo:     tip.NewFeeInfoCell(tipManager.BlockBuilder()),
		tipManager:  tipManager,
		blacklist:   bl,
		schedule:    schedule,
		stakedNodes: staked.NewRegistry(),
	}

	stages, err := t.build(ctx, p)
	if err != nil {
		cancel()
		return nil, err
	}

	for _, s := range stages {
		s := s
		r := service.Go(p.Logger, s.name, func() error { return s.run(ctx) })
		switch s.name {
		case "broadcast":
			t.broadcast = r
		case "entry_notifier":
			t.notifier = r
		default:
			t.stages = append(t.stages, r)
		}
	}
	if t.tracer != nil {
		t.tracer.Start(ctx)
	}
	return t, nil
}

// build allocates the queues and constructs the stages in dependency
// order. Endpoints bound before a failure are closed again.
func (t *TPU) build(ctx context.Context, p Params) (stages []stage, err error) {
	logger, m := p.Logger, p.Metrics
	identity := p.identity()

	var servers []*streamer.QUICServer
	defer func() {
		if err != nil {
			for _, s := range servers {
				_ = s.Close()
			}
		}
	}()
	add := func(name string, run func(context.Context) error) {
		stages = append(stages, stage{name: name, run: run})
	}

	// Packet queues, from the transports inwards.
	interceptQ := queue.New[types.PacketBatch](ctx)
	forwardedQ := queue.New[types.PacketBatch](ctx)
	voteQ := queue.New[types.PacketBatch](ctx)
	verifyQ := queue.New[types.PacketBatch](ctx)
	heartbeatQ := queue.New[types.Heartbeat](ctx)
	bundleQ := queue.New[types.Bundle](ctx)

	bankingTracer := tracer.New(ctx, p.Tracer.Enabled)
	channels := bankingTracer.CreateChannels(ctx)

	fetchStage := fetch.NewStage(logger.With("module", "fetch"), fetch.StageConfig{
		Transactions:        p.Sockets.Transactions,
		TransactionForwards: p.Sockets.TransactionForwards,
		Vote:                p.Sockets.Vote,
		UDPEnabled:          p.UDPEnabled,
		Coalesce:            p.Coalesce,
		Intercept:           interceptQ,
		VoteOut:             voteQ,
		ForwardedOut:        forwardedQ,
		ForwardedIn:         forwardedQ.Out(),
	}, m.Streamer)
	add("fetch", fetchStage.Run)

	endpoints := []struct {
		name   string
		conn   net.PacketConn
		class  types.PacketClass
		out    streamer.PacketSender
		params streamer.QUICParams
	}{
		{"quic_tpu", p.Sockets.TransactionsQUIC, types.Ordinary, interceptQ, p.QUIC.Transactions},
		{"quic_tpu_forwards", p.Sockets.TransactionForwardsQUIC, types.Forwarded, forwardedQ, p.QUIC.TransactionForwards},
		{"quic_tpu_vote", p.Sockets.VoteQUIC, types.Vote, voteQ, p.QUIC.Vote},
	}
	for _, e := range endpoints {
		if e.conn == nil {
			continue
		}
		srv, err := streamer.NewQUICServer(
			logger.With("module", "streamer"), e.name, e.conn, e.class,
			p.Identity, e.out, e.params, t.stakedNodes, m.Streamer,
		)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
		add(e.name, srv.Run)
	}

	t.fetchManager = fetch.NewManager(logger.With("module", "fetch_manager"), fetch.ManagerConfig{
		Heartbeats:      heartbeatQ.Out(),
		Packets:         interceptQ.Out(),
		Out:             verifyQ,
		Advertiser:      p.Advertiser,
		LocalTPU:        p.LocalTPU,
		LocalTPUForward: p.LocalTPUForward,
		Timeout:         p.HeartbeatTimeout,
	}, m.Fetch)
	add("fetch_manager", t.fetchManager.Run)

	sigverifyStage, err := sigverify.NewStage(
		logger.With("module", "sigverify"), "tpu",
		verifyQ.Out(), sigverify.NewTransactionVerifier(), channels.NonVoteSender, m.SigVerify,
	)
	if err != nil {
		return nil, err
	}
	add("sigverify", sigverifyStage.Run)

	voteSigverifyStage, err := sigverify.NewStage(
		logger.With("module", "vote_sigverify"), "tpu_vote",
		voteQ.Out(), sigverify.NewRejectNonVoteVerifier(), channels.TPUVoteSender, m.SigVerify,
	)
	if err != nil {
		return nil, err
	}
	add("vote_sigverify", voteSigverifyStage.Run)

	if p.GossipVotes != nil {
		listener := votelistener.NewListener(
			logger.With("module", "vote_listener"),
			p.GossipVotes, sigverify.NewRejectNonVoteVerifier(), channels.GossipVoteSender, m.SigVerify,
		)
		add("vote_listener", listener.Run)
	}

	tracker := cost.NewTracker(p.BlockCostLimit)
	locker := bundle.NewAccountLocker()

	bankingStage, err := banking.NewStage(logger.With("module", "banking"), banking.StageConfig{
		NonVote:      channels.NonVote,
		TPUVote:      channels.TPUVote,
		GossipVote:   channels.GossipVote,
		Admitter:     banking.NewAdmitter(t.blacklist, locker, tracker, t.schedule),
		Recorder:     p.Recorder,
		TickInterval: p.TickInterval,
	}, m.Banking)
	if err != nil {
		return nil, err
	}
	add("banking", bankingStage.Run)

	bundleStage := bundle.NewStage(logger.With("module", "bundle"), bundle.StageConfig{
		Bundles:    bundleQ.Out(),
		Recorder:   p.Recorder,
		Tracker:    tracker,
		Locker:     locker,
		TipManager: t.tipManager,
		FeeInfo:    t.feeInfo,
	}, m.Bundle)
	add("bundle", bundleStage.Run)

	// Packets from the relayer and the block engine are trusted to have
	// been filtered already and skip the gate.
	relayerStage := relayer.NewStage(logger.With("module", "relayer"), p.Relayer, identity, heartbeatQ, verifyQ, m.Relayer)
	add("relayer", relayerStage.Run)

	blockEngineStage := blockengine.NewStage(logger.With("module", "block_engine"), p.BlockEngine, identity, t.feeInfo, bundleQ, verifyQ, m.BlockEngine)
	add("block_engine", blockEngineStage.Run)

	updater := staked.NewUpdater(logger.With("module", "staked_nodes"), p.StakeSource, t.stakedNodes, p.StakedOverridesPath, p.StakedRefreshInterval)
	add("staked_nodes_updater", updater.Run)

	entries := p.Entries
	if p.EntryNotifications != nil {
		broadcastQ := queue.New[types.Entry](ctx)
		notifier := entrynotify.NewNotifier(logger.With("module", "entry_notifier"), p.Entries, p.EntryNotifications, broadcastQ)
		add("entry_notifier", notifier.Run)
		entries = broadcastQ.Out()
	}

	broadcastStage, err := broadcast.NewStage(logger.With("module", "broadcast"), entries, p.Sockets.Broadcast, broadcast.StageConfig{
		TicksPerSlot:  p.Recorder.TicksPerSlot(),
		Peers:         p.BroadcastPeers,
		ShredReceiver: p.ShredReceiver,
	}, m.Broadcast)
	if err != nil {
		return nil, err
	}
	add("broadcast", broadcastStage.Run)

	if p.Tracer.Enabled {
		t.tracer, err = tracer.NewThread(logger.With("module", "banking_tracer"), bankingTracer, p.Tracer.Path, p.Tracer.MaxSize, p.Tracer.MaxFiles)
		if err != nil {
			return nil, err
		}
	}

	return stages, nil
}

// Mode returns the interception gate's current mode.
func (t *TPU) Mode() fetch.Mode { return t.fetchManager.Mode() }

// FeeInfo returns the block builder record advertised to the block engine.
func (t *TPU) FeeInfo() *tip.FeeInfoCell { return t.feeInfo }

// TipManager returns the tip manager. Block builder changes made through
// it take effect at the next slot.
func (t *TPU) TipManager() *tip.Manager { return t.tipManager }

// Blacklist returns the accounts ordinary transactions may not reference.
func (t *TPU) Blacklist() *blacklist.Set { return t.blacklist }

// Schedule returns the bundle reservation schedule.
func (t *TPU) Schedule() cost.Schedule { return t.schedule }

// StakedNodes returns the registry the QUIC endpoints admit peers by.
func (t *TPU) StakedNodes() *staked.Registry { return t.stakedNodes }

// Stop cancels every stage. Join waits for them.
func (t *TPU) Stop() { t.cancel() }
