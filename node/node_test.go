package node

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/internal/fetch"
	"github.com/tendermint/tpu/libs/log"
	tmos "github.com/tendermint/tpu/libs/os"
)

func TestNodeStartStop(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	cfg, err := config.ResetTestRoot(t.TempDir(), "node_start_stop")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	assert.True(t, tmos.FileExists(cfg.IdentityKeyFile()))

	require.NoError(t, n.Start(ctx))
	assert.True(t, n.IsRunning())
	assert.Equal(t, fetch.Direct, n.TPU().Mode())

	tpuAddr, fwdAddr := n.AdvertisedAddrs()
	assert.Equal(t, n.ListenAddr().String(), tpuAddr.String())
	assert.NotNil(t, fwdAddr)

	require.NoError(t, n.Stop())
	assert.False(t, n.IsRunning())

	// the sockets are released
	conn, err := net.ListenPacket("udp", n.ListenAddr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestNodeKeepsIdentity(t *testing.T) {
	cfg, err := config.ResetTestRoot(t.TempDir(), "node_identity")
	require.NoError(t, err)

	a, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, a.sockets.Close())

	b, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, b.sockets.Close())

	assert.Equal(t, a.Identity(), b.Identity())
}

func TestBindSocketsReleasesOnError(t *testing.T) {
	taken, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := config.TestTPUConfig()
	cfg.BroadcastAddress = taken.LocalAddr().String()

	_, err = bindSockets(cfg)
	require.Error(t, err)
}

func TestContactInfo(t *testing.T) {
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8003}
	relay := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 9003}

	ci := newContactInfo(log.NewNopLogger(), local, nil)
	require.NoError(t, ci.SetTPU(relay))
	require.NoError(t, ci.SetTPUForward(relay))

	tpuAddr, fwdAddr := ci.Addrs()
	assert.Equal(t, relay, tpuAddr)
	assert.Equal(t, relay, fwdAddr)
}

func TestQUICLimitsFollowConfig(t *testing.T) {
	cfg := config.DefaultTPUConfig()
	cfg.MaxConnectionsPerPeer = 3
	cfg.MaxUnstakedConnections = 7

	limits := quicLimits(cfg)
	assert.Equal(t, 3, limits.Transactions.MaxConnectionsPerPeer)
	assert.Equal(t, 7, limits.Transactions.MaxUnstakedConnections)
	assert.Equal(t, 0, limits.TransactionForwards.MaxUnstakedConnections)
	assert.Equal(t, 1, limits.Vote.MaxConnectionsPerPeer)
	assert.Equal(t, 0, limits.Vote.MaxUnstakedConnections)
}

func TestResolvePeers(t *testing.T) {
	peers, err := resolvePeers([]string{"127.0.0.1:8001"})
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "127.0.0.1:8001", peers[0].String())

	_, err = resolvePeers([]string{"no-port"})
	assert.Error(t, err)
}
