package cost

import "sync"

// Tracker accounts the block cost used in the current slot. Usage resets
// when a later slot is first seen; slots before the current one are closed.
type Tracker struct {
	limit uint64

	mtx  sync.Mutex
	slot uint64
	used uint64
}

// NewTracker returns a tracker admitting at most limit cost per slot.
func NewTracker(limit uint64) *Tracker {
	return &Tracker{limit: limit}
}

// TryAdd charges cost to slot if, with reserved withheld from the limit,
// it fits. It reports whether the cost was charged. Nothing is charged to a
// slot older than the current one.
func (t *Tracker) TryAdd(slot, cost, reserved uint64) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if slot < t.slot {
		return false
	}
	t.roll(slot)

	if reserved >= t.limit {
		return false
	}
	avail := t.limit - reserved
	if t.used > avail || cost > avail-t.used {
		return false
	}
	t.used += cost
	return true
}

// Used returns the cost charged to slot so far.
func (t *Tracker) Used(slot uint64) uint64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if slot != t.slot {
		return 0
	}
	return t.used
}

// Remove refunds cost previously charged to slot, for work that was not
// recorded after all.
func (t *Tracker) Remove(slot, cost uint64) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if slot != t.slot {
		return
	}
	if cost > t.used {
		cost = t.used
	}
	t.used -= cost
}

// Limit returns the per-slot block cost limit.
func (t *Tracker) Limit() uint64 { return t.limit }

func (t *Tracker) roll(slot uint64) {
	if slot > t.slot {
		t.slot = slot
		t.used = 0
	}
}
