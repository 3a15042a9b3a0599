package broadcast

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

func TestShredderSplitsAndNumbers(t *testing.T) {
	s := &shredder{}
	data := bytes.Repeat([]byte{7}, 2*ShredPayloadSize+1)

	shreds := s.shred(data, 3, true)
	require.Len(t, shreds, 3)
	for i, sh := range shreds {
		assert.EqualValues(t, i, sh.Index)
		assert.EqualValues(t, 3, sh.Slot)
		assert.Equal(t, i == 2, sh.DataComplete())
		assert.Equal(t, i == 2, sh.LastInSlot())
	}
	assert.Len(t, shreds[2].Payload, 1)

	next := s.shred([]byte{1}, 3, false)
	assert.EqualValues(t, 3, next[0].Index, "indices continue within a slot")
	next = s.shred([]byte{1}, 4, false)
	assert.EqualValues(t, 0, next[0].Index, "indices restart with the slot")

	var joined []byte
	for _, sh := range shreds {
		decoded, err := DecodeShred(sh.Encode())
		require.NoError(t, err)
		joined = append(joined, decoded.Payload...)
	}
	assert.Equal(t, data, joined)
}

func TestDecodeShredRejectsGarbage(t *testing.T) {
	_, err := DecodeShred([]byte{1, 2})
	assert.Error(t, err)

	raw := Shred{Payload: []byte{1}}.Encode()
	raw[13], raw[14] = 0xff, 0xff
	_, err = DecodeShred(raw)
	assert.Error(t, err)
}

func listen(t *testing.T) net.PacketConn {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readShred(t *testing.T, conn net.PacketConn) Shred {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, ShredSize)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	sh, err := DecodeShred(buf[:n])
	require.NoError(t, err)
	return sh
}

func TestStageSendsToPeersAndShredReceiver(t *testing.T) {
	defer leaktest.Check(t)()

	peer := listen(t)
	receiver := listen(t)
	out := listen(t)

	sr := &ShredReceiver{}
	sr.Set(receiver.LocalAddr().(*net.UDPAddr))

	in := make(chan types.Entry, 1)
	s, err := NewStage(log.TestingLogger(), in, out, StageConfig{
		TicksPerSlot:  2,
		Peers:         []net.Addr{peer.LocalAddr()},
		ShredReceiver: sr,
	}, NopMetrics())
	require.NoError(t, err)

	in <- types.Entry{Slot: 0, TickHeight: 1}
	close(in)
	require.NoError(t, s.Run(context.Background()))

	for _, conn := range []net.PacketConn{peer, receiver} {
		sh := readShred(t, conn)
		assert.True(t, sh.LastInSlot())
		assert.True(t, sh.DataComplete())
	}
}

func TestNewStageZeroTicks(t *testing.T) {
	_, err := NewStage(log.NewNopLogger(), nil, nil, StageConfig{}, NopMetrics())
	assert.True(t, types.IsConfigurationError(err))
}
