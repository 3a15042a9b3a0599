package poh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func (s *entrySink) len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.entries)
}

func TestNewRecorderValidates(t *testing.T) {
	_, err := NewRecorder(0, time.Millisecond, &entrySink{})
	assert.True(t, types.IsConfigurationError(err))
	_, err = NewRecorder(4, 0, &entrySink{})
	assert.True(t, types.IsConfigurationError(err))
}

func TestRecorderSlots(t *testing.T) {
	sink := &entrySink{}
	r, err := NewRecorder(4, time.Millisecond, sink)
	require.NoError(t, err)

	tx := &types.Transaction{Signatures: make([]types.Signature, 1), AccountKeys: make([]types.Pubkey, 1)}

	require.NoError(t, r.Record(0, []*types.Transaction{tx}))
	for i := 0; i < 4; i++ {
		r.Tick()
	}
	assert.EqualValues(t, 4, r.TickHeight())
	assert.EqualValues(t, 1, r.Slot())

	assert.ErrorIs(t, r.Record(0, []*types.Transaction{tx}), ErrSlotEnded)
	require.NoError(t, r.Record(1, []*types.Transaction{tx}))
	require.NoError(t, r.Record(1, nil))

	require.Len(t, sink.entries, 6)
	assert.False(t, sink.entries[0].IsTick())
	assert.True(t, sink.entries[4].IsTick())
	assert.EqualValues(t, 0, sink.entries[4].Slot)
	assert.EqualValues(t, 3, sink.entries[4].TickHeight)
	assert.EqualValues(t, 1, sink.entries[5].Slot)

	// hashes chain
	for i := 1; i < len(sink.entries); i++ {
		assert.NotEqual(t, sink.entries[i-1].Hash, sink.entries[i].Hash)
	}
}

func TestRecorderRun(t *testing.T) {
	sink := &entrySink{}
	r, err := NewRecorder(64, time.Millisecond, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.len() >= 5 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, r.TickHeight(), uint64(5))
}
