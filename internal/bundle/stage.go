// Package bundle executes bundles from the block engine. A bundle's
// transactions are recorded together in one entry or not at all.
package bundle

import (
	"context"

	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// Recorder records transactions into the current slot.
type Recorder interface {
	Slot() uint64
	Record(slot uint64, txs []*types.Transaction) error
}

// StageConfig holds the bundle stage's collaborators.
type StageConfig struct {
	Bundles    <-chan types.Bundle
	Recorder   Recorder
	Tracker    *cost.Tracker
	Locker     *AccountLocker
	TipManager *tip.Manager
	// FeeInfo is written by this stage only.
	FeeInfo *tip.FeeInfoCell
}

// Stage is the bundle engine.
type Stage struct {
	logger  log.Logger
	cfg     StageConfig
	metrics *Metrics

	lastSlot uint64
	cranked  bool
}

// NewStage returns a bundle stage.
func NewStage(logger log.Logger, cfg StageConfig, metrics *Metrics) *Stage {
	return &Stage{logger: logger, cfg: cfg, metrics: metrics}
}

// Run executes bundles until ctx is done or the bundle channel closes.
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-s.cfg.Bundles:
			if !ok {
				return nil
			}
			s.execute(ctx, b)
		}
	}
}

// execute charges the bundle against the full block limit, with no
// reservation, and records it while its accounts are locked. Ordinary
// transactions already admitted on those accounts are recorded first.
func (s *Stage) execute(ctx context.Context, b types.Bundle) {
	if err := s.cfg.Locker.Lock(ctx, b); err != nil {
		return
	}
	defer s.cfg.Locker.Unlock(b)

	slot := s.cfg.Recorder.Slot()
	s.crankTips(slot)

	c := b.Cost()
	if !s.cfg.Tracker.TryAdd(slot, c, 0) {
		s.metrics.Failed.With("reason", "cost").Add(1)
		s.logger.Debug("bundle exceeds block cost", "bundle", b.ID.String(), "cost", c)
		return
	}
	if err := s.cfg.Recorder.Record(slot, b.Transactions); err != nil {
		s.cfg.Tracker.Remove(slot, c)
		s.metrics.Failed.With("reason", "record").Add(1)
		s.logger.Debug("failed to record bundle", "bundle", b.ID.String(), "err", err)
		return
	}
	s.metrics.Executed.Add(1)
}

// crankTips applies the configured block builder once per slot, before
// the slot's first bundle.
func (s *Stage) crankTips(slot uint64) {
	if s.cranked && slot == s.lastSlot {
		return
	}
	s.cranked = true
	s.lastSlot = slot

	info := s.cfg.TipManager.BlockBuilder()
	if s.cfg.FeeInfo.Store(info) {
		s.metrics.TipCranks.Add(1)
		s.logger.Info("block builder changed", "slot", slot, "block_builder", info.BlockBuilder.String(), "commission", info.Commission)
	}
}
