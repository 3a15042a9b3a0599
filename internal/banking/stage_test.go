package banking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/internal/blacklist"
	"github.com/tendermint/tpu/internal/bundle"
	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/internal/poh"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

type entrySink struct {
	mtx     sync.Mutex
	entries []types.Entry
}

func (s *entrySink) Send(e types.Entry) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.entries = append(s.entries, e)
	return true
}

func (s *entrySink) recorded() []*types.Transaction {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var txs []*types.Transaction
	for _, e := range s.entries {
		txs = append(txs, e.Transactions...)
	}
	return txs
}

func TestStageRecordsAdmitted(t *testing.T) {
	defer leaktest.Check(t)()

	sink := &entrySink{}
	rec, err := poh.NewRecorder(64, time.Hour, sink)
	require.NoError(t, err)

	bad, busy := types.Pubkey{1}, types.Pubkey{2}
	locks := lockedSet{busy: true}
	a := NewAdmitter(blacklist.New(bad), locks, cost.NewTracker(1<<30), mustSchedule(t, 64, 0, 0))

	nonVote := make(chan types.TxBatch, 1)
	tpuVote := make(chan types.TxBatch, 1)
	gossipVote := make(chan types.TxBatch, 1)
	s, err := NewStage(log.TestingLogger(), StageConfig{
		NonVote:      nonVote,
		TPUVote:      tpuVote,
		GossipVote:   gossipVote,
		Admitter:     a,
		Recorder:     rec,
		TickInterval: 10 * time.Millisecond,
	}, NopMetrics())
	require.NoError(t, err)

	good := unsignedTx(false, 1, types.Pubkey{3})
	vote := unsignedTx(true, 1, types.Pubkey{4})
	gossip := unsignedTx(true, 1, types.Pubkey{5})
	nonVote <- types.TxBatch{Transactions: []*types.Transaction{good, unsignedTx(false, 1, bad), unsignedTx(false, 1, busy)}}
	tpuVote <- types.TxBatch{Transactions: []*types.Transaction{vote}, Class: types.Vote}
	gossipVote <- types.TxBatch{Transactions: []*types.Transaction{gossip}, Class: types.Vote}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.recorded()) == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []*types.Transaction{good, vote, gossip}, sink.recorded())

	close(nonVote)
	close(tpuVote)
	close(gossipVote)
	require.NoError(t, <-done)
	assert.Len(t, s.deferred, 1, "the locked transaction waits for its bundle")
}

func TestStageRejectsZeroTick(t *testing.T) {
	_, err := NewStage(log.NewNopLogger(), StageConfig{}, NopMetrics())
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestStageRecordsBeforeBundleOnSharedAccount(t *testing.T) {
	defer leaktest.Check(t)()

	sink := &entrySink{}
	rec, err := poh.NewRecorder(64, time.Hour, sink)
	require.NoError(t, err)

	tracker := cost.NewTracker(1 << 30)
	locker := bundle.NewAccountLocker()

	nonVote := make(chan types.TxBatch, 1)
	s, err := NewStage(log.TestingLogger(), StageConfig{
		NonVote:      nonVote,
		Admitter:     NewAdmitter(blacklist.New(), locker, tracker, mustSchedule(t, 64, 0, 0)),
		Recorder:     rec,
		TickInterval: 50 * time.Millisecond,
	}, NopMetrics())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	bundles := queue.New[types.Bundle](ctx)
	bs := bundle.NewStage(log.TestingLogger(), bundle.StageConfig{
		Bundles:    bundles.Out(),
		Recorder:   rec,
		Tracker:    tracker,
		Locker:     locker,
		TipManager: tip.NewManager(tip.Config{}),
		FeeInfo:    tip.NewFeeInfoCell(tip.FeeInfo{}),
	}, bundle.NopMetrics())

	bankingDone := make(chan error)
	bundleDone := make(chan error)
	go func() { bankingDone <- s.Run(ctx) }()
	go func() { bundleDone <- bs.Run(ctx) }()

	shared := types.Pubkey{5}
	ordinary := unsignedTx(false, 1, shared)
	nonVote <- types.TxBatch{Transactions: []*types.Transaction{ordinary}}
	require.Eventually(t, func() bool { return locker.Held() == 1 }, 5*time.Second, time.Millisecond)

	b := types.NewBundle(unsignedTx(false, 1, shared))
	bundles.Send(b)

	require.Eventually(t, func() bool { return len(sink.recorded()) == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []*types.Transaction{ordinary, b.Transactions[0]}, sink.recorded(),
		"a transaction admitted before the bundle is recorded before it")

	cancel()
	require.NoError(t, <-bankingDone)
	require.NoError(t, <-bundleDone)
	assert.Equal(t, 0, locker.Len())
	assert.Equal(t, 0, locker.Held())
}
