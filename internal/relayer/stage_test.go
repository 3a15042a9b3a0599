package relayer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/internal/proxy"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

// fakeRelayer sends one packet message, then heartbeats for beats rounds,
// then stays silent until the client hangs up.
func fakeRelayer(t *testing.T, beats int, connects *int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(connects, 1)
		assert.NotEmpty(t, r.Header.Get(IdentityHeader))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(proxy.Message{Type: proxy.TypePackets, Packets: [][]byte{[]byte("relayed")}}); err != nil {
			return
		}
		for i := 0; i < beats; i++ {
			if err := conn.WriteJSON(proxy.Message{Type: proxy.TypeHeartbeat, TPU: "127.0.0.1:9000"}); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStageDeliversHeartbeatsAndPackets(t *testing.T) {
	var connects int32
	srv := fakeRelayer(t, 3, &connects)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	heartbeats := queue.New[types.Heartbeat](ctx)
	packets := queue.New[types.PacketBatch](ctx)

	cfg := NewConfig(Settings{
		URL:                       wsURL(srv),
		ExpectedHeartbeatInterval: 20 * time.Millisecond,
		OldestAllowedHeartbeat:    time.Hour,
	})
	s := NewStage(log.TestingLogger(), cfg, types.Pubkey{1}, heartbeats, packets, NopMetrics())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	select {
	case b := <-packets.Out():
		require.Len(t, b.Packets, 1)
		assert.Equal(t, "relayed", string(b.Packets[0].Data))
	case <-time.After(5 * time.Second):
		t.Fatal("no packets")
	}
	for i := 0; i < 3; i++ {
		select {
		case hb := <-heartbeats.Out():
			assert.Equal(t, "127.0.0.1:9000", hb.TPU.String())
		case <-time.After(5 * time.Second):
			t.Fatal("no heartbeat")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestStageReconnectsOnStarvation(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	var connects int32
	srv := fakeRelayer(t, 1, &connects)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := NewConfig(Settings{
		URL:                       wsURL(srv),
		ExpectedHeartbeatInterval: 10 * time.Millisecond,
		OldestAllowedHeartbeat:    50 * time.Millisecond,
	})
	s := NewStage(log.TestingLogger(), cfg, types.Pubkey{1},
		queue.New[types.Heartbeat](ctx), queue.New[types.PacketBatch](ctx), NopMetrics())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&connects) >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	srv.CloseClientConnections()
}

func TestStageDisabledWithoutURL(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStage(log.TestingLogger(), NewConfig(Settings{}), types.Pubkey{},
		queue.New[types.Heartbeat](ctx), queue.New[types.PacketBatch](ctx), NopMetrics())

	done := make(chan error)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stage did not stop")
	}
}
