package tpu

import (
	"net"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/tendermint/tpu/internal/blacklist"
	"github.com/tendermint/tpu/internal/blockengine"
	"github.com/tendermint/tpu/internal/broadcast"
	"github.com/tendermint/tpu/internal/entrynotify"
	"github.com/tendermint/tpu/internal/fetch"
	"github.com/tendermint/tpu/internal/poh"
	"github.com/tendermint/tpu/internal/relayer"
	"github.com/tendermint/tpu/internal/staked"
	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// MaxQUICConnectionsPerPeer is the per-peer limit of the transaction and
// forward endpoints. Vote endpoints allow one connection per peer.
const MaxQUICConnectionsPerPeer = 8

// Sockets are the bound sockets the TPU receives and broadcasts on. They
// must stay open until Join returns; QUIC endpoints are closed by the TPU.
type Sockets struct {
	Transactions        []net.PacketConn
	TransactionForwards []net.PacketConn
	Vote                []net.PacketConn
	Broadcast           net.PacketConn

	TransactionsQUIC        net.PacketConn
	TransactionForwardsQUIC net.PacketConn
	VoteQUIC                net.PacketConn
}

// QUICLimits are the per-endpoint connection limits.
type QUICLimits struct {
	Transactions        streamer.QUICParams
	TransactionForwards streamer.QUICParams
	Vote                streamer.QUICParams
}

// DefaultQUICLimits returns the usual limits. Only the transaction
// endpoint admits unstaked peers.
func DefaultQUICLimits() QUICLimits {
	tx := streamer.DefaultQUICParams()
	tx.MaxConnectionsPerPeer = MaxQUICConnectionsPerPeer

	fwd := tx
	fwd.MaxUnstakedConnections = 0

	vote := streamer.DefaultQUICParams()
	vote.MaxConnectionsPerPeer = 1
	vote.MaxStakedConnections = streamer.MaxStakedConnections + streamer.MaxUnstakedConnections
	vote.MaxUnstakedConnections = 0

	return QUICLimits{Transactions: tx, TransactionForwards: fwd, Vote: vote}
}

// TracerParams enables the banking trace file.
type TracerParams struct {
	Enabled  bool
	Path     string
	MaxSize  int64
	MaxFiles int
}

// Params are the TPU's external dependencies.
type Params struct {
	Logger   log.Logger
	Identity ed25519.PrivateKey
	Sockets  Sockets

	UDPEnabled bool
	Coalesce   time.Duration
	QUIC       QUICLimits

	// Interception gate.
	HeartbeatTimeout time.Duration
	Advertiser       fetch.Advertiser
	LocalTPU         *net.UDPAddr
	LocalTPUForward  *net.UDPAddr

	// Votes observed through gossip.
	GossipVotes <-chan types.PacketBatch

	// Recorder is the slot clock; it sends entries to Entries.
	Recorder *poh.Recorder
	Entries  <-chan types.Entry
	// EntryNotifications is optional.
	EntryNotifications entrynotify.NotificationSender

	BlockCostLimit         uint64
	PreallocatedBundleCost uint64
	// ReservedTicks defaults to 80% of a slot when nil.
	ReservedTicks *uint64
	TickInterval  time.Duration

	// Blacklist defaults to the embedded account list. The tip payment
	// program is always added.
	Blacklist *blacklist.Set

	StakeSource           staked.Source
	StakedOverridesPath   string
	StakedRefreshInterval time.Duration

	Relayer     *relayer.Config
	BlockEngine *blockengine.Config
	Tip         tip.Config

	BroadcastPeers []net.Addr
	ShredReceiver  *broadcast.ShredReceiver

	Tracer TracerParams

	Metrics *Metrics
}

func (p *Params) identity() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], p.Identity.Public().(ed25519.PublicKey))
	return pk
}
