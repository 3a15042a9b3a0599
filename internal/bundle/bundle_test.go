package bundle

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/internal/poh"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

func newTx(t *testing.T, accounts ...types.Pubkey) *types.Transaction {
	t.Helper()
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return types.NewSignedTransaction([]ed25519.PrivateKey{sk}, accounts, 1000, false, nil)
}

func TestAccountLocker(t *testing.T) {
	ctx := context.Background()
	l := NewAccountLocker()
	a, b, c := types.Pubkey{1}, types.Pubkey{2}, types.Pubkey{3}

	tx := newTx(t, a, b)
	b1 := types.NewBundle(tx)
	b2 := types.NewBundle(newTx(t, b))

	require.NoError(t, l.Lock(ctx, b1))
	require.NoError(t, l.Lock(ctx, b2))
	assert.True(t, l.Locked([]types.Pubkey{a}))
	assert.True(t, l.Locked([]types.Pubkey{c, b}))
	assert.False(t, l.Locked([]types.Pubkey{c}))
	assert.False(t, l.Hold([]types.Pubkey{c, a}), "locked accounts cannot be held")
	assert.Equal(t, 0, l.Held())

	l.Unlock(b1)
	assert.False(t, l.Locked([]types.Pubkey{a}))
	assert.True(t, l.Locked([]types.Pubkey{b}), "b is still held by the second bundle")

	l.Unlock(b2)
	assert.Equal(t, 0, l.Len())
}

func TestAccountLockerWaitsForHolds(t *testing.T) {
	defer leaktest.Check(t)()

	l := NewAccountLocker()
	acct := types.Pubkey{5}
	keys := []types.Pubkey{acct}
	require.True(t, l.Hold(keys))

	b := types.NewBundle(newTx(t, acct))
	locked := make(chan error, 1)
	go func() { locked <- l.Lock(context.Background(), b) }()

	require.Eventually(t, func() bool { return l.Locked(keys) }, 5*time.Second, time.Millisecond)
	select {
	case <-locked:
		t.Fatal("bundle locked an account still held by an admitted transaction")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, l.Hold(keys), "no new holds while a bundle waits")

	l.Release(keys)
	require.NoError(t, <-locked)
	assert.Equal(t, 0, l.Held())
	l.Unlock(b)
	assert.True(t, l.Hold(keys))
}

func TestAccountLockerLockCanceled(t *testing.T) {
	l := NewAccountLocker()
	acct := types.Pubkey{5}
	require.True(t, l.Hold([]types.Pubkey{acct}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Lock(ctx, types.NewBundle(newTx(t, acct)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Len(), "a canceled lock leaves nothing locked")
}

type recordedEntries struct {
	mtx     sync.Mutex
	entries []types.Entry
}

func (r *recordedEntries) Send(e types.Entry) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.entries = append(r.entries, e)
	return true
}

func (r *recordedEntries) count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.entries)
}

func TestStageExecutesBundles(t *testing.T) {
	defer leaktest.Check(t)()

	entries := &recordedEntries{}
	rec, err := poh.NewRecorder(64, time.Hour, entries)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	bundles := queue.New[types.Bundle](ctx)

	big := types.NewBundle(newTx(t), newTx(t))
	small := types.NewBundle(newTx(t, types.Pubkey{5}))

	builder := tip.FeeInfo{BlockBuilder: types.Pubkey{8}, Commission: 5}
	cell := tip.NewFeeInfoCell(tip.FeeInfo{})
	locker := NewAccountLocker()
	s := NewStage(log.TestingLogger(), StageConfig{
		Bundles:    bundles.Out(),
		Recorder:   rec,
		Tracker:    cost.NewTracker(small.Cost()),
		Locker:     locker,
		TipManager: tip.NewManager(tip.Config{BlockBuilder: builder.BlockBuilder, BlockBuilderCommission: builder.Commission}),
		FeeInfo:    cell,
	}, NopMetrics())

	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	bundles.Send(big)
	bundles.Send(small)

	require.Eventually(t, func() bool { return entries.count() == 1 }, 5*time.Second, time.Millisecond)
	entries.mtx.Lock()
	require.Len(t, entries.entries[0].Transactions, 1)
	assert.Equal(t, small.Transactions[0].ID(), entries.entries[0].Transactions[0].ID())
	entries.mtx.Unlock()

	info, _ := cell.Load()
	assert.Equal(t, builder, info)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, locker.Len())
}
