package types

import (
	"net"
	"time"
)

// PacketClass is the ingress class a packet arrived on.
type PacketClass uint8

const (
	Ordinary PacketClass = iota
	Forwarded
	Vote
)

func (c PacketClass) String() string {
	switch c {
	case Ordinary:
		return "ordinary"
	case Forwarded:
		return "forwarded"
	case Vote:
		return "vote"
	default:
		return "unknown"
	}
}

// PacketMeta is the receipt metadata of one packet.
type PacketMeta struct {
	Class     PacketClass
	Addr      net.Addr
	Forwarded bool
	Discard   bool
	Staked    bool
}

// Packet is raw transaction bytes plus receipt metadata.
type Packet struct {
	Data []byte
	Meta PacketMeta
}

// PacketBatch is an ordered group of packets received within one coalescing
// window. It moves by value between stage queues.
type PacketBatch struct {
	Packets    []Packet
	Coalesce   time.Duration
	ReceivedAt time.Time
}

// Len returns the number of packets in the batch.
func (b PacketBatch) Len() int { return len(b.Packets) }

// NewPacketBatch wraps raw transactions as packets of class c.
func NewPacketBatch(c PacketClass, data ...[]byte) PacketBatch {
	b := PacketBatch{
		Packets:    make([]Packet, len(data)),
		ReceivedAt: time.Now(),
	}
	for i, d := range data {
		b.Packets[i] = Packet{Data: d, Meta: PacketMeta{Class: c, Forwarded: c == Forwarded}}
	}
	return b
}

// TxBatch is a group of signature-verified transactions, in packet order.
type TxBatch struct {
	Transactions []*Transaction
	Class        PacketClass
}
