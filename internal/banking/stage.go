// Package banking is the production engine: it admits verified
// transactions and votes into the current slot and records them as
// entries.
package banking

import (
	"context"
	"time"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// DefaultMaxDeferred bounds the retry buffer.
const DefaultMaxDeferred = 1 << 16

// Recorder is the slot clock the stage records into.
type Recorder interface {
	Slot() uint64
	TickHeight() uint64
	Record(slot uint64, txs []*types.Transaction) error
}

// StageConfig holds the banking stage's inputs and collaborators.
type StageConfig struct {
	NonVote    <-chan types.TxBatch
	TPUVote    <-chan types.TxBatch
	GossipVote <-chan types.TxBatch

	Admitter *Admitter
	Recorder Recorder

	// Admitted transactions are recorded every TickInterval, and deferred
	// ones retried.
	TickInterval time.Duration
	MaxDeferred  int
}

// Stage is the banking stage.
type Stage struct {
	logger  log.Logger
	cfg     StageConfig
	metrics *Metrics

	pending     []*types.Transaction
	pendingSlot uint64
	deferred    []*types.Transaction
}

// NewStage returns a banking stage.
func NewStage(logger log.Logger, cfg StageConfig, metrics *Metrics) (*Stage, error) {
	if cfg.TickInterval <= 0 {
		return nil, types.ConfigurationError{Param: "tick_interval", Reason: "must be positive"}
	}
	if cfg.MaxDeferred <= 0 {
		cfg.MaxDeferred = DefaultMaxDeferred
	}
	return &Stage{logger: logger, cfg: cfg, metrics: metrics}, nil
}

// Run admits transactions until ctx is done or every input is closed.
// Once every input is closed, whatever was admitted is recorded before Run
// returns.
func (s *Stage) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	nonVote, tpuVote, gossipVote := s.cfg.NonVote, s.cfg.TPUVote, s.cfg.GossipVote
	for nonVote != nil || tpuVote != nil || gossipVote != nil {
		select {
		case <-ctx.Done():
			s.cfg.Admitter.Release(s.pending)
			s.pending = nil
			return nil
		case <-ticker.C:
			s.flush()
			s.retryDeferred()
		case b, ok := <-nonVote:
			if !ok {
				nonVote = nil
				continue
			}
			s.process(b)
		case b, ok := <-tpuVote:
			if !ok {
				tpuVote = nil
				continue
			}
			s.process(b)
		case b, ok := <-gossipVote:
			if !ok {
				gossipVote = nil
				continue
			}
			s.process(b)
		}
	}

	s.flush()
	return nil
}

func (s *Stage) process(b types.TxBatch) {
	for _, tx := range b.Transactions {
		s.admit(tx)
	}
}

func (s *Stage) admit(tx *types.Transaction) {
	slot := s.cfg.Recorder.Slot()
	if len(s.pending) > 0 && slot != s.pendingSlot {
		s.flush()
	}

	switch v := s.cfg.Admitter.Admit(tx, slot, s.cfg.Recorder.TickHeight()); v {
	case Admitted:
		kind := "non_vote"
		if tx.IsVote() {
			kind = "vote"
		}
		s.metrics.Admitted.With("kind", kind).Add(1)
		s.pendingSlot = slot
		s.pending = append(s.pending, tx)
	case Rejected:
		s.metrics.Blacklisted.Add(1)
	default:
		s.metrics.Deferred.With("reason", v.String()).Add(1)
		s.deferTx(tx)
	}
}

func (s *Stage) deferTx(tx *types.Transaction) {
	if len(s.deferred) >= s.cfg.MaxDeferred {
		s.metrics.Dropped.With("reason", "deferred_full").Add(1)
		return
	}
	s.deferred = append(s.deferred, tx)
	s.metrics.DeferredSize.Set(float64(len(s.deferred)))
}

// flush records the pending transactions as one entry and releases their
// account holds. If the slot ended in the meantime they are refunded and
// retried in the next slot.
func (s *Stage) flush() {
	if len(s.pending) == 0 {
		return
	}
	txs := s.pending
	s.pending = nil

	err := s.cfg.Recorder.Record(s.pendingSlot, txs)
	s.cfg.Admitter.Release(txs)
	if err != nil {
		s.logger.Debug("failed to record entry", "slot", s.pendingSlot, "txs", len(txs), "err", err)
		s.cfg.Admitter.Refund(s.pendingSlot, txs)
		for _, tx := range txs {
			s.deferTx(tx)
		}
		return
	}
	s.metrics.Entries.Add(1)
}

func (s *Stage) retryDeferred() {
	if len(s.deferred) == 0 {
		return
	}
	retry := s.deferred
	s.deferred = nil
	for _, tx := range retry {
		s.admit(tx)
	}
	s.metrics.DeferredSize.Set(float64(len(s.deferred)))
}
