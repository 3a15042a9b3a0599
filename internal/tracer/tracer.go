// Package tracer owns the channels into the banking stage and can record
// what flows through them.
package tracer

import (
	"context"

	"github.com/tendermint/tpu/libs/queue"
	"github.com/tendermint/tpu/types"
)

// Banking channel names.
const (
	ChannelNonVote    = "non_vote"
	ChannelTPUVote    = "tpu_vote"
	ChannelGossipVote = "gossip_vote"
)

// Event describes one batch sent into the banking stage.
type Event struct {
	Channel      string
	Transactions int
	Class        types.PacketClass
}

// BankingTracer creates the banking channels. When enabled, every send is
// also reported as an Event.
type BankingTracer struct {
	events *queue.Queue[Event]
}

// New returns a tracer. A disabled tracer costs nothing per send.
func New(ctx context.Context, enabled bool) *BankingTracer {
	t := &BankingTracer{}
	if enabled {
		t.events = queue.New[Event](ctx)
	}
	return t
}

// Enabled reports whether sends are traced.
func (t *BankingTracer) Enabled() bool { return t.events != nil }

// Events returns the trace events, or nil if the tracer is disabled.
func (t *BankingTracer) Events() <-chan Event {
	if t.events == nil {
		return nil
	}
	return t.events.Out()
}

// Close ends the event stream once every event has been read.
func (t *BankingTracer) Close() {
	if t.events != nil {
		t.events.Close()
	}
}

// Sender is the producing end of a banking channel.
type Sender struct {
	channel string
	q       *queue.Queue[types.TxBatch]
	tracer  *BankingTracer
}

// Send enqueues b, tracing it first if enabled.
func (s *Sender) Send(b types.TxBatch) bool {
	if s.tracer.events != nil {
		s.tracer.events.Send(Event{Channel: s.channel, Transactions: len(b.Transactions), Class: b.Class})
	}
	return s.q.Send(b)
}

// Close closes the channel. The receiver drains what was already sent.
func (s *Sender) Close() { s.q.Close() }

// Channels are the three inputs of the banking stage.
type Channels struct {
	NonVoteSender    *Sender
	TPUVoteSender    *Sender
	GossipVoteSender *Sender

	NonVote    <-chan types.TxBatch
	TPUVote    <-chan types.TxBatch
	GossipVote <-chan types.TxBatch
}

// CreateChannels allocates the banking channels.
func (t *BankingTracer) CreateChannels(ctx context.Context) Channels {
	mk := func(name string) *Sender {
		return &Sender{channel: name, q: queue.New[types.TxBatch](ctx), tracer: t}
	}
	nonVote, tpuVote, gossipVote := mk(ChannelNonVote), mk(ChannelTPUVote), mk(ChannelGossipVote)
	return Channels{
		NonVoteSender:    nonVote,
		TPUVoteSender:    tpuVote,
		GossipVoteSender: gossipVote,
		NonVote:          nonVote.q.Out(),
		TPUVote:          tpuVote.q.Out(),
		GossipVote:       gossipVote.q.Out(),
	}
}
