// Package proxy holds the websocket plumbing shared by the relayer and
// block-engine clients.
package proxy

import (
	"fmt"
	"net"

	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/types"
)

// MessageType tags a Message.
type MessageType string

const (
	// relayer and block engine → validator
	TypeHeartbeat MessageType = "heartbeat"
	TypePackets   MessageType = "packets"
	TypeBundle    MessageType = "bundle"

	// validator → block engine
	TypeSubscribe MessageType = "subscribe"
	TypeFeeInfo   MessageType = "fee_info"
)

// Message is the JSON envelope exchanged over a proxy stream. Byte slices
// travel as base64.
type Message struct {
	Type MessageType `json:"type"`

	TPU        string `json:"tpu,omitempty"`
	TPUForward string `json:"tpu_forward,omitempty"`

	Packets [][]byte       `json:"packets,omitempty"`
	Bundle  *BundleMessage `json:"bundle,omitempty"`

	Identity string       `json:"identity,omitempty"`
	FeeInfo  *tip.FeeInfo `json:"fee_info,omitempty"`
}

// BundleMessage is a bundle as sent by the block engine.
type BundleMessage struct {
	UUID         string   `json:"uuid"`
	Transactions [][]byte `json:"transactions"`
}

// Heartbeat converts a heartbeat message. Both addresses are optional.
func (m Message) Heartbeat() (types.Heartbeat, error) {
	var (
		hb  types.Heartbeat
		err error
	)
	if m.TPU != "" {
		if hb.TPU, err = net.ResolveUDPAddr("udp", m.TPU); err != nil {
			return hb, fmt.Errorf("heartbeat tpu address: %w", err)
		}
	}
	if m.TPUForward != "" {
		if hb.TPUForward, err = net.ResolveUDPAddr("udp", m.TPUForward); err != nil {
			return hb, fmt.Errorf("heartbeat tpu forward address: %w", err)
		}
	}
	return hb, nil
}

// PacketBatch wraps the message's packets. Proxied packets are
// unattributed ordinary traffic.
func (m Message) PacketBatch() types.PacketBatch {
	return types.NewPacketBatch(types.Ordinary, m.Packets...)
}
