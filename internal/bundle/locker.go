package bundle

import (
	"context"
	"sync"

	"github.com/tendermint/tpu/types"
)

// AccountLocker keeps the bundle stage and the banking stage off each
// other's accounts.
//
// A bundle locks its accounts as soon as it is dequeued; from then on the
// banking stage defers ordinary transactions touching them. The banking
// stage in turn holds the accounts of every transaction it has admitted
// until that transaction is recorded, and the bundle waits for those holds
// to be released before it executes. Transactions admitted before a bundle
// are therefore recorded before it.
type AccountLocker struct {
	mtx     sync.Mutex
	locked  map[types.Pubkey]int // bundle locks
	held    map[types.Pubkey]int // banking holds
	release chan struct{}        // closed and replaced whenever holds drop
}

// NewAccountLocker returns an empty locker.
func NewAccountLocker() *AccountLocker {
	return &AccountLocker{
		locked:  make(map[types.Pubkey]int),
		held:    make(map[types.Pubkey]int),
		release: make(chan struct{}),
	}
}

// Lock locks every account of b, then waits until no admitted transaction
// holds any of them. Locks are counted, so overlapping bundles may hold the
// same account. If ctx is done first, the locks are released and ctx's
// error returned.
func (l *AccountLocker) Lock(ctx context.Context, b types.Bundle) error {
	accounts := b.Accounts()

	l.mtx.Lock()
	for _, a := range accounts {
		l.locked[a]++
	}
	l.mtx.Unlock()

	for {
		l.mtx.Lock()
		if !anyCounted(l.held, accounts) {
			l.mtx.Unlock()
			return nil
		}
		ch := l.release
		l.mtx.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			l.Unlock(b)
			return ctx.Err()
		}
	}
}

// Unlock releases the locks taken by Lock(b).
func (l *AccountLocker) Unlock(b types.Bundle) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	decrement(l.locked, b.Accounts())
}

// Locked reports whether any of keys is locked by a bundle.
func (l *AccountLocker) Locked(keys []types.Pubkey) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return anyCounted(l.locked, keys)
}

// Hold marks keys as in use by an admitted transaction, unless a bundle has
// locked any of them. It reports whether the hold was taken.
func (l *AccountLocker) Hold(keys []types.Pubkey) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if anyCounted(l.locked, keys) {
		return false
	}
	for _, k := range keys {
		l.held[k]++
	}
	return true
}

// Release drops a hold taken by Hold(keys) and wakes waiting bundles.
func (l *AccountLocker) Release(keys []types.Pubkey) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	decrement(l.held, keys)
	close(l.release)
	l.release = make(chan struct{})
}

// Len returns the number of accounts locked by bundles.
func (l *AccountLocker) Len() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.locked)
}

// Held returns the number of accounts held by admitted transactions.
func (l *AccountLocker) Held() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.held)
}

func anyCounted(m map[types.Pubkey]int, keys []types.Pubkey) bool {
	for _, k := range keys {
		if m[k] > 0 {
			return true
		}
	}
	return false
}

func decrement(m map[types.Pubkey]int, keys []types.Pubkey) {
	for _, k := range keys {
		if m[k] <= 1 {
			delete(m, k)
		} else {
			m[k]--
		}
	}
}
