// Package streamer implements the transport adapters that turn UDP
// datagrams and QUIC streams into packet batches.
package streamer

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

const (
	// DefaultCoalesce is how long a receiver keeps adding packets to a
	// batch after the first one arrives.
	DefaultCoalesce = 5 * time.Millisecond

	// MaxBatchSize bounds the packets in one batch.
	MaxBatchSize = 128

	// readTimeout bounds every blocking read so cancellation is observed.
	readTimeout = 100 * time.Millisecond
)

// PacketSender accepts packet batches without blocking. A *queue.Queue
// of PacketBatch satisfies it.
type PacketSender interface {
	Send(types.PacketBatch) bool
}

// Receiver reads datagrams from one socket and sends them downstream in
// batches.
type Receiver struct {
	logger   log.Logger
	conn     net.PacketConn
	class    types.PacketClass
	out      PacketSender
	coalesce time.Duration
	metrics  *Metrics
}

// NewReceiver returns a receiver for conn. Packets are tagged with class.
func NewReceiver(
	logger log.Logger,
	conn net.PacketConn,
	class types.PacketClass,
	out PacketSender,
	coalesce time.Duration,
	metrics *Metrics,
) *Receiver {
	return &Receiver{
		logger:   logger.With("addr", conn.LocalAddr().String(), "class", class.String()),
		conn:     conn,
		class:    class,
		out:      out,
		coalesce: coalesce,
		metrics:  metrics,
	}
}

// Run receives until ctx is done. A socket error other than a read
// timeout ends the receiver with a TransportError.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := r.recvBatch(ctx)
		if len(batch.Packets) > 0 {
			r.metrics.Batches.With("transport", "udp", "class", r.class.String()).Add(1)
			if !r.out.Send(batch) {
				return nil
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return types.TransportError{Transport: "udp", Addr: r.conn.LocalAddr().String(), Err: err}
		}
	}
}

// recvBatch blocks for the first packet up to readTimeout, then keeps
// reading until the coalesce window closes or the batch is full.
func (r *Receiver) recvBatch(ctx context.Context) (types.PacketBatch, error) {
	var batch types.PacketBatch
	deadline := time.Now().Add(readTimeout)

	for len(batch.Packets) < MaxBatchSize {
		if err := r.conn.SetReadDeadline(deadline); err != nil {
			return batch, err
		}

		buf := make([]byte, types.PacketDataSize+1)
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return batch, nil
			}
			return batch, err
		}
		if n > types.PacketDataSize {
			r.metrics.OversizedPackets.With("transport", "udp").Add(1)
			continue
		}

		if len(batch.Packets) == 0 {
			batch.ReceivedAt = time.Now()
			batch.Coalesce = r.coalesce
			deadline = batch.ReceivedAt.Add(r.coalesce)
		}
		batch.Packets = append(batch.Packets, types.Packet{
			Data: buf[:n],
			Meta: types.PacketMeta{
				Class:     r.class,
				Addr:      addr,
				Forwarded: r.class == types.Forwarded,
			},
		})
		r.metrics.Packets.With("transport", "udp", "class", r.class.String()).Add(1)

		if ctx.Err() != nil {
			return batch, nil
		}
	}
	return batch, nil
}
