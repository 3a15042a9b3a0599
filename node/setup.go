package node

import (
	"fmt"
	"net"
	"sync"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/internal/blockengine"
	"github.com/tendermint/tpu/internal/broadcast"
	"github.com/tendermint/tpu/internal/relayer"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/tpu"
	"github.com/tendermint/tpu/types"
)

// boundSockets are the sockets a node owns. The TPU reads from them; the
// node closes them once the TPU has joined.
type boundSockets struct {
	tpu.Sockets
	all []net.PacketConn
}

func (s *boundSockets) listen(addr string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, types.TransportError{Transport: "udp", Addr: addr, Err: err}
	}
	s.all = append(s.all, conn)
	return conn, nil
}

func (s *boundSockets) listenOptional(addr string) (net.PacketConn, error) {
	if addr == "" {
		return nil, nil
	}
	return s.listen(addr)
}

func (s *boundSockets) Close() error {
	var firstErr error
	for _, c := range s.all {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func bindSockets(cfg *config.TPUConfig) (s *boundSockets, err error) {
	s = &boundSockets{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	tx, err := s.listen(cfg.ListenAddress)
	if err != nil {
		return nil, err
	}
	fwd, err := s.listen(cfg.ForwardListenAddress)
	if err != nil {
		return nil, err
	}
	vote, err := s.listen(cfg.VoteListenAddress)
	if err != nil {
		return nil, err
	}
	s.Transactions = []net.PacketConn{tx}
	s.TransactionForwards = []net.PacketConn{fwd}
	s.Vote = []net.PacketConn{vote}

	if s.Broadcast, err = s.listen(cfg.BroadcastAddress); err != nil {
		return nil, err
	}
	if s.TransactionsQUIC, err = s.listenOptional(cfg.QUICListenAddress); err != nil {
		return nil, err
	}
	if s.TransactionForwardsQUIC, err = s.listenOptional(cfg.QUICForwardListenAddress); err != nil {
		return nil, err
	}
	if s.VoteQUIC, err = s.listenOptional(cfg.QUICVoteListenAddress); err != nil {
		return nil, err
	}
	return s, nil
}

func quicLimits(cfg *config.TPUConfig) tpu.QUICLimits {
	limits := tpu.DefaultQUICLimits()

	limits.Transactions.MaxConnectionsPerPeer = cfg.MaxConnectionsPerPeer
	limits.Transactions.MaxStakedConnections = cfg.MaxStakedConnections
	limits.Transactions.MaxUnstakedConnections = cfg.MaxUnstakedConnections
	limits.Transactions.MaxConnectionsPerIPPerMinute = cfg.MaxConnectionsPerIPPerMinute
	limits.Transactions.Coalesce = cfg.Coalesce

	limits.TransactionForwards.MaxConnectionsPerPeer = cfg.MaxConnectionsPerPeer
	limits.TransactionForwards.MaxStakedConnections = cfg.MaxStakedConnections
	limits.TransactionForwards.MaxConnectionsPerIPPerMinute = cfg.MaxConnectionsPerIPPerMinute
	limits.TransactionForwards.Coalesce = cfg.Coalesce

	limits.Vote.MaxConnectionsPerIPPerMinute = cfg.MaxConnectionsPerIPPerMinute
	limits.Vote.Coalesce = cfg.Coalesce
	return limits
}

func resolvePeers(peers []string) ([]net.Addr, error) {
	out := make([]net.Addr, 0, len(peers))
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("resolving broadcast peer %s: %w", p, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func shredReceiver(addr string) (*broadcast.ShredReceiver, error) {
	r := &broadcast.ShredReceiver{}
	if addr == "" {
		return r, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving shred receiver %s: %w", addr, err)
	}
	r.Set(udpAddr)
	return r, nil
}

func tipConfig(cfg *config.TipConfig) (tip.Config, error) {
	payment, distribution, builder, err := cfg.Pubkeys()
	if err != nil {
		return tip.Config{}, err
	}
	return tip.Config{
		TipPaymentProgramID:      payment,
		TipDistributionProgramID: distribution,
		BlockBuilder:             builder,
		BlockBuilderCommission:   cfg.BlockBuilderCommission,
	}, nil
}

func relayerConfig(cfg *config.RelayerConfig) *relayer.Config {
	return relayer.NewConfig(relayer.Settings{
		URL:                       cfg.URL,
		ExpectedHeartbeatInterval: cfg.ExpectedHeartbeatInterval,
		OldestAllowedHeartbeat:    cfg.OldestAllowedHeartbeat,
	})
}

func blockEngineConfig(cfg *config.BlockEngineConfig) *blockengine.Config {
	return blockengine.NewConfig(blockengine.Settings{URL: cfg.URL})
}

// contactInfo records the TPU addresses this node advertises. Without a
// gossip service the addresses are only logged and kept for inspection.
type contactInfo struct {
	logger log.Logger

	mtx        sync.Mutex
	tpu        *net.UDPAddr
	tpuForward *net.UDPAddr
}

func newContactInfo(logger log.Logger, tpuAddr, fwdAddr *net.UDPAddr) *contactInfo {
	return &contactInfo{logger: logger, tpu: tpuAddr, tpuForward: fwdAddr}
}

func (ci *contactInfo) SetTPU(addr *net.UDPAddr) error {
	ci.mtx.Lock()
	ci.tpu = addr
	ci.mtx.Unlock()
	ci.logger.Info("advertising tpu address", "addr", addr.String())
	return nil
}

func (ci *contactInfo) SetTPUForward(addr *net.UDPAddr) error {
	ci.mtx.Lock()
	ci.tpuForward = addr
	ci.mtx.Unlock()
	ci.logger.Info("advertising tpu forward address", "addr", addr.String())
	return nil
}

// Addrs returns the currently advertised addresses.
func (ci *contactInfo) Addrs() (tpuAddr, fwdAddr *net.UDPAddr) {
	ci.mtx.Lock()
	defer ci.mtx.Unlock()
	return ci.tpu, ci.tpuForward
}
