package sigverify

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

func signedTx(t *testing.T, vote bool, payload string) *types.Transaction {
	t.Helper()
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return types.NewSignedTransaction([]ed25519.PrivateKey{sk}, []types.Pubkey{{1}}, 100, vote, []byte(payload))
}

func TestTransactionVerifier(t *testing.T) {
	good := signedTx(t, false, "good")
	vote := signedTx(t, true, "vote")
	forged := signedTx(t, false, "forged")
	forged.Payload = []byte("tampered")

	discarded := types.Packet{Data: good.Encode(), Meta: types.PacketMeta{Discard: true}}
	batch := types.NewPacketBatch(types.Ordinary, good.Encode(), []byte{0xff}, forged.Encode(), vote.Encode())
	batch.Packets = append(batch.Packets, discarded)

	verified, rejected := NewTransactionVerifier().Verify(batch)
	require.Len(t, verified.Transactions, 2)
	assert.Equal(t, good.ID(), verified.Transactions[0].ID())
	assert.Equal(t, vote.ID(), verified.Transactions[1].ID())
	assert.Equal(t, []string{ReasonMalformed, ReasonSignature, ReasonDiscarded}, rejected)

	verified, rejected = NewRejectNonVoteVerifier().Verify(batch)
	require.Len(t, verified.Transactions, 1)
	assert.True(t, verified.Transactions[0].IsVote())
	assert.Contains(t, rejected, ReasonNonVote)
}

func TestStageDeduplicates(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	in := queue.New[types.PacketBatch](ctx)
	out := queue.New[types.TxBatch](ctx)

	s, err := NewStage(log.TestingLogger(), "test", in.Out(), NewTransactionVerifier(), out, NopMetrics())
	require.NoError(t, err)
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	tx := signedTx(t, false, "once")
	other := signedTx(t, false, "other")
	in.Send(types.NewPacketBatch(types.Ordinary, tx.Encode(), tx.Encode()))
	in.Send(types.NewPacketBatch(types.Ordinary, tx.Encode()))
	in.Send(types.NewPacketBatch(types.Ordinary, other.Encode()))

	select {
	case b := <-out.Out():
		require.Len(t, b.Transactions, 1)
		assert.Equal(t, tx.ID(), b.Transactions[0].ID())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	select {
	case b := <-out.Out():
		require.Len(t, b.Transactions, 1)
		assert.Equal(t, other.ID(), b.Transactions[0].ID())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	cancel()
	require.NoError(t, <-done)
}
