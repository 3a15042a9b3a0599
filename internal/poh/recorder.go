// Package poh is the slot clock of the pipeline. It ticks at a fixed rate,
// chains entry hashes and records transactions into entries.
package poh

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/tendermint/tpu/types"
)

// ErrSlotEnded is returned by Record when the slot the caller worked on is
// no longer current.
var ErrSlotEnded = errors.New("slot ended")

// EntrySender accepts entries without blocking.
type EntrySender interface {
	Send(types.Entry) bool
}

// Recorder keeps the tick height and emits entries in order.
type Recorder struct {
	ticksPerSlot uint64
	tickDuration time.Duration
	entries      EntrySender

	mtx        sync.Mutex
	tickHeight uint64
	hash       [sha256.Size]byte
	numHashes  uint64
}

// NewRecorder returns a recorder at tick height zero.
func NewRecorder(ticksPerSlot uint64, tickDuration time.Duration, entries EntrySender) (*Recorder, error) {
	if ticksPerSlot == 0 {
		return nil, types.ConfigurationError{Param: "ticks_per_slot", Reason: "must be greater than zero"}
	}
	if tickDuration <= 0 {
		return nil, types.ConfigurationError{Param: "tick_duration", Reason: "must be positive"}
	}
	return &Recorder{
		ticksPerSlot: ticksPerSlot,
		tickDuration: tickDuration,
		entries:      entries,
	}, nil
}

func (r *Recorder) TicksPerSlot() uint64        { return r.ticksPerSlot }
func (r *Recorder) TickDuration() time.Duration { return r.tickDuration }

// TickHeight returns the number of ticks so far.
func (r *Recorder) TickHeight() uint64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.tickHeight
}

// Slot returns the slot of the next tick.
func (r *Recorder) Slot() uint64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.tickHeight / r.ticksPerSlot
}

// Tick emits a tick entry and advances the tick height.
func (r *Recorder) Tick() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.hash = types.NextHash(r.hash, nil)
	r.numHashes++
	r.entries.Send(types.Entry{
		Slot:       r.tickHeight / r.ticksPerSlot,
		TickHeight: r.tickHeight,
		NumHashes:  r.numHashes,
		Hash:       r.hash,
	})
	r.numHashes = 0
	r.tickHeight++
}

// Record emits txs as one entry if slot is still current. Either every
// transaction is recorded or none is.
func (r *Recorder) Record(slot uint64, txs []*types.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if slot != r.tickHeight/r.ticksPerSlot {
		return ErrSlotEnded
	}
	r.hash = types.NextHash(r.hash, txs)
	r.numHashes++
	r.entries.Send(types.Entry{
		Slot:         slot,
		TickHeight:   r.tickHeight,
		NumHashes:    r.numHashes,
		Hash:         r.hash,
		Transactions: txs,
	})
	r.numHashes = 0
	return nil
}

// Run ticks every tick duration until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}
