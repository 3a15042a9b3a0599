package tracer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/service"
	"github.com/tendermint/tpu/types"
)

func TestChannelsDeliverInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := New(ctx, false)
	assert.False(t, tr.Enabled())
	assert.Nil(t, tr.Events())

	ch := tr.CreateChannels(ctx)
	for i := 1; i <= 3; i++ {
		require.True(t, ch.NonVoteSender.Send(types.TxBatch{Transactions: make([]*types.Transaction, i)}))
	}
	ch.NonVoteSender.Close()

	var sizes []int
	for b := range ch.NonVote {
		sizes = append(sizes, len(b.Transactions))
	}
	assert.Equal(t, []int{1, 2, 3}, sizes)
}

func TestThreadWritesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := New(ctx, true)
	ch := tr.CreateChannels(ctx)
	path := filepath.Join(t.TempDir(), "banking_trace.log")
	th, err := NewThread(log.TestingLogger(), tr, path, 1<<20, 2)
	require.NoError(t, err)
	th.Start(ctx)

	ch.TPUVoteSender.Send(types.TxBatch{Transactions: make([]*types.Transaction, 2), Class: types.Vote})
	ch.NonVoteSender.Send(types.TxBatch{Transactions: make([]*types.Transaction, 5)})
	tr.Close()

	out := th.Join()
	require.NoError(t, out.JoinErr)
	require.NoError(t, out.Reported)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, ChannelTPUVote, events[0]["channel"])
	assert.EqualValues(t, 2, events[0]["txs"])
	assert.Equal(t, types.Vote.String(), events[0]["class"])
	assert.Equal(t, ChannelNonVote, events[1]["channel"])
	assert.Contains(t, events[0], "time")
}

func TestNewThreadDisabled(t *testing.T) {
	_, err := NewThread(log.NewNopLogger(), New(context.Background(), false), "x", 0, 0)
	assert.Error(t, err)
}

func TestJoinOutcome(t *testing.T) {
	th := &Thread{routine: service.Go(log.NewNopLogger(), "banking_tracer", func() error { panic("boom") })}
	out := th.Join()
	assert.Error(t, out.JoinErr)
	assert.NoError(t, out.Reported)

	reported := types.DiagnosticError{Source: "banking_tracer", Err: os.ErrClosed}
	th = &Thread{routine: service.Go(log.NewNopLogger(), "banking_tracer", func() error { return reported })}
	out = th.Join()
	assert.NoError(t, out.JoinErr)
	assert.Equal(t, reported, out.Reported)
}
