// Package cost holds the block-space reservation policy and the per-slot
// block cost accounting shared by the banking and bundle stages.
package cost

import (
	"github.com/tendermint/tpu/types"
)

// Reserver yields the block cost withheld from ordinary transactions at a
// given tick height.
type Reserver interface {
	Reservation(tickHeight uint64) uint64
}

// Schedule reserves PreallocatedCost for bundles during the first
// ReservedTicks ticks of every slot. It is immutable and safe for
// concurrent use.
type Schedule struct {
	ticksPerSlot     uint64
	reservedTicks    uint64
	preallocatedCost uint64
}

var _ Reserver = Schedule{}

// NewSchedule validates the schedule parameters. reservedTicks may be zero
// (never reserve) or at least ticksPerSlot (always reserve).
func NewSchedule(ticksPerSlot, reservedTicks, preallocatedCost uint64) (Schedule, error) {
	if ticksPerSlot == 0 {
		return Schedule{}, types.ConfigurationError{
			Param:  "ticks_per_slot",
			Reason: "must be greater than zero",
		}
	}
	return Schedule{
		ticksPerSlot:     ticksPerSlot,
		reservedTicks:    reservedTicks,
		preallocatedCost: preallocatedCost,
	}, nil
}

// ReservedTicks returns ticksPerSlot*numerator/denominator, saturating at
// ticksPerSlot. A zero denominator reserves nothing.
func ReservedTicks(ticksPerSlot, numerator, denominator uint64) uint64 {
	if denominator == 0 || numerator == 0 {
		return 0
	}
	if numerator >= denominator {
		return ticksPerSlot
	}
	// ticksPerSlot is small in practice; guard the product anyway.
	if ticksPerSlot > ^uint64(0)/numerator {
		return ticksPerSlot / denominator * numerator
	}
	return ticksPerSlot * numerator / denominator
}

// DefaultReservedTicks reserves the first 80% of the slot.
func DefaultReservedTicks(ticksPerSlot uint64) uint64 {
	return ReservedTicks(ticksPerSlot, 8, 10)
}

// Reservation returns the preallocated cost if tickHeight falls in the
// reserved part of its slot, and zero otherwise.
func (s Schedule) Reservation(tickHeight uint64) uint64 {
	if tickHeight%s.ticksPerSlot < s.reservedTicks {
		return s.preallocatedCost
	}
	return 0
}

func (s Schedule) TicksPerSlot() uint64     { return s.ticksPerSlot }
func (s Schedule) ReservedTicks() uint64    { return s.reservedTicks }
func (s Schedule) PreallocatedCost() uint64 { return s.preallocatedCost }
