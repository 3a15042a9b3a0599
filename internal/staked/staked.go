// Package staked tracks the stake of known nodes, used by the QUIC servers
// to split connection capacity between staked and unstaked peers.
package staked

import (
	"sync/atomic"

	"github.com/tendermint/tpu/types"
)

// Snapshot is an immutable view of node stakes.
type Snapshot struct {
	stakes map[types.Pubkey]uint64
	total  uint64
}

// NewSnapshot copies stakes into a snapshot. Zero stakes are left out.
func NewSnapshot(stakes map[types.Pubkey]uint64) *Snapshot {
	s := &Snapshot{stakes: make(map[types.Pubkey]uint64, len(stakes))}
	for pk, stake := range stakes {
		if stake == 0 {
			continue
		}
		s.stakes[pk] = stake
		s.total += stake
	}
	return s
}

// Stake returns the stake of pk, zero if unknown.
func (s *Snapshot) Stake(pk types.Pubkey) uint64 { return s.stakes[pk] }

// IsStaked reports whether pk has non-zero stake.
func (s *Snapshot) IsStaked(pk types.Pubkey) bool { return s.stakes[pk] > 0 }

// Total returns the sum of all stakes.
func (s *Snapshot) Total() uint64 { return s.total }

// Len returns the number of staked nodes.
func (s *Snapshot) Len() int { return len(s.stakes) }

// Registry publishes the current snapshot. Readers never block; the
// Updater is the only writer.
type Registry struct {
	cur atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry holding an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{}
	r.cur.Store(NewSnapshot(nil))
	return r
}

// Load returns the current snapshot.
func (r *Registry) Load() *Snapshot { return r.cur.Load() }

func (r *Registry) store(s *Snapshot) { r.cur.Store(s) }
