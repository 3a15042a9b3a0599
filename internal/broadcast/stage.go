// Package broadcast turns recorded entries into shreds and sends them to
// the cluster.
package broadcast

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// ShredReceiver holds the optional address that receives a copy of every
// shred. It may be changed while the stage runs.
type ShredReceiver struct {
	addr atomic.Pointer[net.UDPAddr]
}

// Set replaces the address. nil disables the copy.
func (r *ShredReceiver) Set(addr *net.UDPAddr) { r.addr.Store(addr) }

// Load returns the current address, or nil.
func (r *ShredReceiver) Load() *net.UDPAddr {
	if r == nil {
		return nil
	}
	return r.addr.Load()
}

// StageConfig configures the broadcast stage.
type StageConfig struct {
	TicksPerSlot  uint64
	Peers         []net.Addr
	ShredReceiver *ShredReceiver
}

// Stage is the broadcast stage.
type Stage struct {
	logger   log.Logger
	in       <-chan types.Entry
	conn     net.PacketConn
	cfg      StageConfig
	shredder shredder
	metrics  *Metrics
}

// NewStage returns a stage broadcasting entries from in over conn.
func NewStage(logger log.Logger, in <-chan types.Entry, conn net.PacketConn, cfg StageConfig, metrics *Metrics) (*Stage, error) {
	if cfg.TicksPerSlot == 0 {
		return nil, types.ConfigurationError{Param: "ticks_per_slot", Reason: "must be greater than zero"}
	}
	return &Stage{
		logger:   logger,
		in:       in,
		conn:     conn,
		cfg:      cfg,
		metrics:  metrics,
	}, nil
}

// Run broadcasts until ctx is done or in is closed. Write failures are
// counted and logged; they do not stop the stage.
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-s.in:
			if !ok {
				return nil
			}
			s.broadcast(e)
		}
	}
}

func (s *Stage) broadcast(e types.Entry) {
	lastInSlot := e.IsTick() && (e.TickHeight+1)%s.cfg.TicksPerSlot == 0
	shreds := s.shredder.shred(e.Encode(), e.Slot, lastInSlot)
	s.metrics.Entries.Add(1)
	s.metrics.Slot.Set(float64(e.Slot))

	receiver := s.cfg.ShredReceiver.Load()
	for _, sh := range shreds {
		raw := sh.Encode()
		for _, peer := range s.cfg.Peers {
			s.send(raw, peer, "peer")
		}
		if receiver != nil {
			s.send(raw, receiver, "shred_receiver")
		}
	}
}

func (s *Stage) send(raw []byte, addr net.Addr, destination string) {
	if _, err := s.conn.WriteTo(raw, addr); err != nil {
		s.metrics.SendErrors.Add(1)
		s.logger.Debug("failed to send shred", "addr", addr.String(), "err", err)
		return
	}
	s.metrics.Shreds.With("destination", destination).Add(1)
}
