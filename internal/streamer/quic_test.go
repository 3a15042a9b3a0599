package streamer

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/internal/staked"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

func newIdentity(t *testing.T) (types.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pk, err := types.PubkeyFromBytes(pub)
	require.NoError(t, err)
	return pk, sk
}

func startQUIC(t *testing.T, params QUICParams, stakes staked.StaticSource) (*QUICServer, *queue.Queue[types.PacketBatch]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	reg := staked.NewRegistry()
	require.NoError(t, staked.NewUpdater(log.TestingLogger(), stakes, reg, "", time.Hour).Refresh(ctx))

	_, identity := newIdentity(t)
	out := queue.New[types.PacketBatch](ctx)
	srv, err := NewQUICServer(log.TestingLogger(), "quic_test", listenUDP(t), types.Ordinary, identity, out, params, reg, NopMetrics())
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return srv, out
}

func dial(t *testing.T, srv *QUICServer, sk ed25519.PrivateKey) quic.Connection {
	t.Helper()
	cert, err := NewTLSCertificate(sk)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, srv.Addr().String(), ClientTLSConfig(&cert), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseWithError(0, "") })
	return conn
}

func TestQUICServerDeliversPackets(t *testing.T) {
	pk, sk := newIdentity(t)
	srv, out := startQUIC(t, DefaultQUICParams(), staked.StaticSource{pk: 100})

	conn := dial(t, srv, sk)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := conn.OpenUniStreamSync(ctx)
	require.NoError(t, err)
	_, err = st.Write([]byte("tx"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	select {
	case b := <-out.Out():
		require.Len(t, b.Packets, 1)
		require.Equal(t, "tx", string(b.Packets[0].Data))
		require.True(t, b.Packets[0].Meta.Staked)
	case <-ctx.Done():
		t.Fatal("timed out waiting for packet")
	}
}

func TestQUICServerRefusesUnstaked(t *testing.T) {
	params := DefaultQUICParams()
	params.MaxUnstakedConnections = 0
	srv, _ := startQUIC(t, params, nil)

	_, sk := newIdentity(t)
	conn := dial(t, srv, sk)

	select {
	case <-conn.Context().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("unstaked connection was not closed")
	}
}
