package fetch

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

type recordingAdvertiser struct {
	mtx  sync.Mutex
	tpus []string
}

func (a *recordingAdvertiser) SetTPU(addr *net.UDPAddr) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.tpus = append(a.tpus, addr.String())
	return nil
}

func (a *recordingAdvertiser) SetTPUForward(*net.UDPAddr) error { return nil }

func (a *recordingAdvertiser) advertised() []string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return append([]string(nil), a.tpus...)
}

type gate struct {
	m          *Manager
	heartbeats *queue.Queue[types.Heartbeat]
	in         *queue.Queue[types.PacketBatch]
	out        *queue.Queue[types.PacketBatch]
	adv        *recordingAdvertiser
	done       chan error
	cancel     context.CancelFunc
}

var (
	localTPU = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 8003}
	relayTPU = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 11222}
)

func startGate(t *testing.T, timeout time.Duration) *gate {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g := &gate{
		heartbeats: queue.New[types.Heartbeat](ctx),
		in:         queue.New[types.PacketBatch](ctx),
		out:        queue.New[types.PacketBatch](ctx),
		adv:        &recordingAdvertiser{},
		done:       make(chan error, 1),
		cancel:     cancel,
	}
	g.m = NewManager(log.TestingLogger(), ManagerConfig{
		Heartbeats: g.heartbeats.Out(),
		Packets:    g.in.Out(),
		Out:        g.out,
		Advertiser: g.adv,
		LocalTPU:   localTPU,
		Timeout:    timeout,
	}, NopMetrics())
	go func() { g.done <- g.m.Run(ctx) }()
	return g
}

func (g *gate) stop(t *testing.T) {
	g.cancel()
	require.NoError(t, <-g.done)
}

func (g *gate) expectForwarded(t *testing.T, data string) {
	t.Helper()
	select {
	case b := <-g.out.Out():
		require.Len(t, b.Packets, 1)
		assert.Equal(t, data, string(b.Packets[0].Data))
	case <-time.After(5 * time.Second):
		t.Fatalf("batch %q was not forwarded", data)
	}
}

func (g *gate) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case b := <-g.out.Out():
		t.Fatalf("unexpected batch forwarded: %v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerDirectForwardsInOrder(t *testing.T) {
	defer leaktest.Check(t)()
	g := startGate(t, time.Hour)

	assert.Equal(t, Direct, g.m.Mode())
	for _, s := range []string{"1", "2", "3"} {
		g.in.Send(types.NewPacketBatch(types.Ordinary, []byte(s)))
	}
	for _, s := range []string{"1", "2", "3"} {
		g.expectForwarded(t, s)
	}
	g.stop(t)
}

func TestManagerHeartbeatRedirectsAndTimesOut(t *testing.T) {
	defer leaktest.Check(t)()
	g := startGate(t, 100*time.Millisecond)

	g.heartbeats.Send(types.Heartbeat{TPU: relayTPU})
	require.Eventually(t, func() bool { return g.m.Mode() == Relayed }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{relayTPU.String()}, g.adv.advertised())

	g.in.Send(types.NewPacketBatch(types.Ordinary, []byte("dropped")))
	g.expectNothing(t)

	require.Eventually(t, func() bool { return g.m.Mode() == Direct }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{relayTPU.String(), localTPU.String()}, g.adv.advertised())

	g.in.Send(types.NewPacketBatch(types.Ordinary, []byte("passed")))
	g.expectForwarded(t, "passed")
	g.stop(t)
}

func TestManagerClosedHeartbeatsFailClosed(t *testing.T) {
	defer leaktest.Check(t)()
	g := startGate(t, time.Hour)

	g.heartbeats.Send(types.Heartbeat{TPU: relayTPU})
	require.Eventually(t, func() bool { return g.m.Mode() == Relayed }, 5*time.Second, time.Millisecond)

	g.heartbeats.Close()
	require.Eventually(t, func() bool { return g.m.Mode() == Direct }, 5*time.Second, time.Millisecond)

	// the gate keeps working without a heartbeat source
	g.in.Send(types.NewPacketBatch(types.Ordinary, []byte("after-close")))
	g.expectForwarded(t, "after-close")
	g.stop(t)
}

func TestManagerStopsWhenPacketsClose(t *testing.T) {
	defer leaktest.Check(t)()
	g := startGate(t, time.Hour)

	g.in.Close()
	select {
	case err := <-g.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	g.cancel()
}

func TestManagerTinyTimeout(t *testing.T) {
	defer leaktest.Check(t)()
	assert.Equal(t, minCheckInterval, checkInterval(time.Nanosecond))
	assert.Equal(t, 25*time.Millisecond, checkInterval(100*time.Millisecond))

	// a timeout too small to divide must not stop the gate from running
	g := startGate(t, time.Nanosecond)
	g.in.Send(types.NewPacketBatch(types.Ordinary, []byte("tiny")))
	g.expectForwarded(t, "tiny")
	g.stop(t)
}
