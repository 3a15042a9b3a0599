package fetch

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// Mode is the interception state of the Manager.
type Mode int32

const (
	// Direct passes primary-ingress batches on to verification.
	Direct Mode = iota
	// Relayed drops primary-ingress batches; the relayer delivers traffic.
	Relayed
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Relayed:
		return "relayed"
	default:
		return "unknown"
	}
}

// DefaultHeartbeatTimeout is how long the Manager stays relayed without a
// heartbeat.
const DefaultHeartbeatTimeout = 1500 * time.Millisecond

const minCheckInterval = time.Millisecond

// Advertiser publishes the TPU addresses other nodes send transactions to.
type Advertiser interface {
	SetTPU(addr *net.UDPAddr) error
	SetTPUForward(addr *net.UDPAddr) error
}

// Manager sits between the transports and signature verification. While
// the relayer sends heartbeats it drops primary-ingress batches and
// advertises the relayer's addresses; when heartbeats stop it falls back
// to passing batches through and restores our own addresses.
type Manager struct {
	logger     log.Logger
	heartbeats <-chan types.Heartbeat
	packets    <-chan types.PacketBatch
	out        streamer.PacketSender
	advertiser Advertiser
	localTPU   *net.UDPAddr
	localFwd   *net.UDPAddr
	timeout    time.Duration
	metrics    *Metrics

	mode int32 // atomic; written only by Run
}

// ManagerConfig holds the Manager's collaborators.
type ManagerConfig struct {
	Heartbeats <-chan types.Heartbeat
	Packets    <-chan types.PacketBatch
	Out        streamer.PacketSender
	Advertiser Advertiser
	// Addresses restored on fallback.
	LocalTPU        *net.UDPAddr
	LocalTPUForward *net.UDPAddr
	Timeout         time.Duration
}

// NewManager returns a Manager in Direct mode.
func NewManager(logger log.Logger, cfg ManagerConfig, metrics *Metrics) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHeartbeatTimeout
	}
	return &Manager{
		logger:     logger,
		heartbeats: cfg.Heartbeats,
		packets:    cfg.Packets,
		out:        cfg.Out,
		advertiser: cfg.Advertiser,
		localTPU:   cfg.LocalTPU,
		localFwd:   cfg.LocalTPUForward,
		timeout:    cfg.Timeout,
		metrics:    metrics,
	}
}

// Mode returns the current interception mode.
func (m *Manager) Mode() Mode {
	return Mode(atomic.LoadInt32(&m.mode))
}

// Run gates batches until ctx is done or the packet channel closes.
func (m *Manager) Run(ctx context.Context) error {
	// check at a fraction of the timeout so fallback happens promptly
	ticker := time.NewTicker(checkInterval(m.timeout))
	defer ticker.Stop()

	heartbeats := m.heartbeats
	var lastHeartbeat time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case hb, ok := <-heartbeats:
			if !ok {
				heartbeats = nil
				m.logger.Error("heartbeat channel closed; staying direct")
				if m.Mode() == Relayed {
					m.fallback()
				}
				continue
			}
			m.metrics.Heartbeats.Add(1)
			lastHeartbeat = time.Now()
			if m.Mode() == Direct {
				m.intercept(hb)
			}

		case batch, ok := <-m.packets:
			if !ok {
				return nil
			}
			if m.Mode() == Relayed {
				m.metrics.BatchesDropped.Add(1)
				m.metrics.PacketsDropped.Add(float64(len(batch.Packets)))
				continue
			}
			m.metrics.BatchesForwarded.Add(1)
			if !m.out.Send(batch) {
				return nil
			}

		case <-ticker.C:
			if m.Mode() == Relayed && time.Since(lastHeartbeat) > m.timeout {
				m.logger.Error("relayer heartbeat timed out; falling back to direct", "timeout", m.timeout)
				m.fallback()
			}
		}
	}
}

func (m *Manager) intercept(hb types.Heartbeat) {
	m.logger.Info("relayer heartbeat received; redirecting traffic", "tpu", addrString(hb.TPU), "tpu_forward", addrString(hb.TPUForward))
	m.advertise(hb.TPU, hb.TPUForward)
	m.setMode(Relayed)
}

func (m *Manager) fallback() {
	m.advertise(m.localTPU, m.localFwd)
	m.setMode(Direct)
}

func (m *Manager) setMode(mode Mode) {
	atomic.StoreInt32(&m.mode, int32(mode))
	m.metrics.Relayed.Set(float64(mode))
}

func (m *Manager) advertise(tpu, fwd *net.UDPAddr) {
	if m.advertiser == nil {
		return
	}
	if tpu != nil {
		if err := m.advertiser.SetTPU(tpu); err != nil {
			m.logger.Error("failed to advertise tpu address", "addr", tpu.String(), "err", err)
		}
	}
	if fwd != nil {
		if err := m.advertiser.SetTPUForward(fwd); err != nil {
			m.logger.Error("failed to advertise tpu forward address", "addr", fwd.String(), "err", err)
		}
	}
}

func checkInterval(timeout time.Duration) time.Duration {
	if d := timeout / 4; d >= minCheckInterval {
		return d
	}
	return minCheckInterval
}

func addrString(a *net.UDPAddr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
