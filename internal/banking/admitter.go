package banking

import (
	"github.com/tendermint/tpu/internal/blacklist"
	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/types"
)

// Verdict is the outcome of an admission check.
type Verdict int

const (
	Admitted Verdict = iota
	// Rejected transactions reference a blacklisted account and are never
	// retried.
	Rejected
	// DeferredLocked transactions touch an account held by a bundle.
	DeferredLocked
	// DeferredCost transactions do not fit in what is left of the block.
	DeferredCost
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Rejected:
		return "blacklisted"
	case DeferredLocked:
		return "locked"
	case DeferredCost:
		return "cost"
	default:
		return "unknown"
	}
}

// Locker arbitrates accounts between this stage and the bundle stage.
// Hold fails while a bundle has locked any of keys; a successful hold
// keeps bundles off keys until Release.
type Locker interface {
	Hold(keys []types.Pubkey) bool
	Release(keys []types.Pubkey)
}

// Admitter decides whether a transaction may be recorded in the current
// slot. The blacklist is consulted before anything is charged.
type Admitter struct {
	blacklist *blacklist.Set
	locker    Locker
	tracker   *cost.Tracker
	reserver  cost.Reserver
}

// NewAdmitter returns an admitter. The blacklist must not change afterwards.
func NewAdmitter(bl *blacklist.Set, locker Locker, tracker *cost.Tracker, reserver cost.Reserver) *Admitter {
	return &Admitter{
		blacklist: bl,
		locker:    locker,
		tracker:   tracker,
		reserver:  reserver,
	}
}

// Admit checks tx against the blacklist, the bundle locks and the block
// cost of slot, in that order. Ordinary transactions leave the bundle
// reservation for tickHeight untouched; votes may use it. An admitted
// transaction has been charged to slot and holds its accounts until
// Release.
func (a *Admitter) Admit(tx *types.Transaction, slot, tickHeight uint64) Verdict {
	if a.blacklist.Intersects(tx.AccountKeys) {
		return Rejected
	}
	if !a.locker.Hold(tx.AccountKeys) {
		return DeferredLocked
	}

	var reserved uint64
	if !tx.IsVote() {
		reserved = a.reserver.Reservation(tickHeight)
	}
	if !a.tracker.TryAdd(slot, tx.Cost(), reserved) {
		a.locker.Release(tx.AccountKeys)
		return DeferredCost
	}
	return Admitted
}

// Release drops the account holds of admitted txs once they are recorded
// or given up on.
func (a *Admitter) Release(txs []*types.Transaction) {
	for _, tx := range txs {
		a.locker.Release(tx.AccountKeys)
	}
}

// Refund returns the cost of txs to slot after they failed to record.
func (a *Admitter) Refund(slot uint64, txs []*types.Transaction) {
	var total uint64
	for _, tx := range txs {
		total += tx.Cost()
	}
	a.tracker.Remove(slot, total)
}
