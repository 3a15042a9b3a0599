package streamer

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/quic-go/quic-go"
	"golang.org/x/time/rate"

	"github.com/tendermint/tpu/internal/staked"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

const (
	MaxStakedConnections   = 2000
	MaxUnstakedConnections = 500

	// DefaultMaxConnectionsPerIPPerMinute is the connection rate allowed
	// from one IP address.
	DefaultMaxConnectionsPerIPPerMinute = 8

	ipLimiterCacheSize = 16 * 1024
	streamReadTimeout  = 2 * time.Second
)

// QUICParams bounds the connections a QUIC server accepts.
type QUICParams struct {
	MaxConnectionsPerPeer int
	MaxStakedConnections  int
	// Zero refuses every unstaked peer.
	MaxUnstakedConnections int
	// Zero disables per-IP rate limiting.
	MaxConnectionsPerIPPerMinute uint64
	MaxStreamsPerConnection      int64
	MaxIdleTimeout               time.Duration
	Coalesce                     time.Duration
}

// DefaultQUICParams returns the limits used for the transaction endpoint.
func DefaultQUICParams() QUICParams {
	return QUICParams{
		MaxConnectionsPerPeer:        1,
		MaxStakedConnections:         MaxStakedConnections,
		MaxUnstakedConnections:       MaxUnstakedConnections,
		MaxConnectionsPerIPPerMinute: DefaultMaxConnectionsPerIPPerMinute,
		MaxStreamsPerConnection:      128,
		MaxIdleTimeout:               10 * time.Second,
		Coalesce:                     DefaultCoalesce,
	}
}

// QUICServer accepts QUIC connections and turns every unidirectional
// stream into one packet. Packets are coalesced into batches the same way
// the UDP receiver does it.
type QUICServer struct {
	logger   log.Logger
	name     string
	class    types.PacketClass
	listener *quic.Listener
	out      PacketSender
	params   QUICParams
	staked   *staked.Registry
	metrics  *Metrics

	limiter *ipLimiter
	conns   *connTable
}

// NewQUICServer starts listening on conn. A listen failure is returned as
// a TransportError.
func NewQUICServer(
	logger log.Logger,
	name string,
	conn net.PacketConn,
	class types.PacketClass,
	identity ed25519.PrivateKey,
	out PacketSender,
	params QUICParams,
	stakedNodes *staked.Registry,
	metrics *Metrics,
) (*QUICServer, error) {
	addr := conn.LocalAddr().String()

	cert, err := NewTLSCertificate(identity)
	if err != nil {
		return nil, types.TransportError{Transport: name, Addr: addr, Err: err}
	}
	limiter, err := newIPLimiter(params.MaxConnectionsPerIPPerMinute)
	if err != nil {
		return nil, types.TransportError{Transport: name, Addr: addr, Err: err}
	}

	ln, err := quic.Listen(conn, ServerTLSConfig(cert), &quic.Config{
		MaxIdleTimeout:        params.MaxIdleTimeout,
		MaxIncomingStreams:    -1,
		MaxIncomingUniStreams: params.MaxStreamsPerConnection,
		KeepAlivePeriod:       params.MaxIdleTimeout / 2,
	})
	if err != nil {
		return nil, types.TransportError{Transport: name, Addr: addr, Err: err}
	}

	return &QUICServer{
		logger:   logger.With("server", name, "addr", addr),
		name:     name,
		class:    class,
		listener: ln,
		out:      out,
		params:   params,
		staked:   stakedNodes,
		metrics:  metrics,
		limiter:  limiter,
		conns: &connTable{
			perPeer:     make(map[string]int),
			maxPerPeer:  params.MaxConnectionsPerPeer,
			maxStaked:   params.MaxStakedConnections,
			maxUnstaked: params.MaxUnstakedConnections,
		},
	}, nil
}

// Addr returns the listening address.
func (s *QUICServer) Addr() net.Addr { return s.listener.Addr() }

// Close stops listening. Used when the server is never run.
func (s *QUICServer) Close() error { return s.listener.Close() }

// Run accepts connections until ctx is done, then closes every connection
// and waits for their handlers.
func (s *QUICServer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(nil)
	packets := make(chan types.Packet, MaxBatchSize)
	g.Go(func() error {
		s.coalesce(ctx, packets)
		return nil
	})

	err := s.acceptLoop(ctx, g, packets)
	cancel()
	_ = s.listener.Close()
	_ = g.Wait()
	return err
}

func (s *QUICServer) acceptLoop(ctx context.Context, g *taskgroup.Group, packets chan<- types.Packet) error {
	for {
		qc, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return types.TransportError{Transport: s.name, Addr: s.listener.Addr().String(), Err: err}
		}

		peer, isStaked, ok := s.admit(qc)
		if !ok {
			continue
		}
		g.Go(func() error {
			defer s.conns.remove(peer, isStaked)
			s.handleConn(ctx, g, qc, isStaked, packets)
			return nil
		})
	}
}

// admit applies the rate, per-peer and staked/unstaked limits to a new
// connection, closing it when refused.
func (s *QUICServer) admit(qc quic.Connection) (peer string, isStaked, ok bool) {
	ip := remoteIP(qc.RemoteAddr())
	if !s.limiter.allow(ip) {
		s.refuse(qc, "rate_limited")
		return "", false, false
	}

	peer = ip
	if pk, has := peerPubkey(qc.ConnectionState().TLS); has {
		peer = pk.String()
		isStaked = s.staked.Load().IsStaked(pk)
	}

	if reason := s.conns.add(peer, isStaked); reason != "" {
		s.refuse(qc, reason)
		return "", false, false
	}

	s.metrics.ConnectionsAccepted.With("server", s.name, "staked", strconv.FormatBool(isStaked)).Add(1)
	s.metrics.OpenConnections.With("server", s.name).Add(1)
	return peer, isStaked, true
}

func (s *QUICServer) refuse(qc quic.Connection, reason string) {
	s.metrics.ConnectionsRefused.With("server", s.name, "reason", reason).Add(1)
	s.logger.Debug("refused connection", "remote", qc.RemoteAddr().String(), "reason", reason)
	_ = qc.CloseWithError(0, reason)
}

func (s *QUICServer) handleConn(
	ctx context.Context,
	g *taskgroup.Group,
	qc quic.Connection,
	isStaked bool,
	packets chan<- types.Packet,
) {
	defer s.metrics.OpenConnections.With("server", s.name).Add(-1)
	defer func() { _ = qc.CloseWithError(0, "") }()

	for {
		st, err := qc.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		g.Go(func() error {
			s.readStream(ctx, qc.RemoteAddr(), st, isStaked, packets)
			return nil
		})
	}
}

// readStream reads one packet from st.
func (s *QUICServer) readStream(
	ctx context.Context,
	addr net.Addr,
	st quic.ReceiveStream,
	isStaked bool,
	packets chan<- types.Packet,
) {
	_ = st.SetReadDeadline(time.Now().Add(streamReadTimeout))
	data, err := io.ReadAll(io.LimitReader(st, types.PacketDataSize+1))
	if err != nil || len(data) == 0 {
		return
	}
	if len(data) > types.PacketDataSize {
		st.CancelRead(0)
		s.metrics.OversizedPackets.With("transport", "quic").Add(1)
		return
	}

	p := types.Packet{
		Data: data,
		Meta: types.PacketMeta{
			Class:     s.class,
			Addr:      addr,
			Forwarded: s.class == types.Forwarded,
			Staked:    isStaked,
		},
	}
	select {
	case packets <- p:
		s.metrics.Packets.With("transport", "quic", "class", s.class.String()).Add(1)
	case <-ctx.Done():
	}
}

func (s *QUICServer) coalesce(ctx context.Context, packets <-chan types.Packet) {
	var (
		batch  types.PacketBatch
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
		if len(batch.Packets) == 0 {
			return
		}
		s.metrics.Batches.With("transport", "quic", "class", s.class.String()).Add(1)
		s.out.Send(batch)
		batch = types.PacketBatch{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-packets:
			if len(batch.Packets) == 0 {
				batch.ReceivedAt = time.Now()
				batch.Coalesce = s.params.Coalesce
				timer = time.NewTimer(s.params.Coalesce)
				timerC = timer.C
			}
			batch.Packets = append(batch.Packets, p)
			if len(batch.Packets) >= MaxBatchSize {
				flush()
			}
		case <-timerC:
			flush()
		}
	}
}

func remoteIP(addr net.Addr) string {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// connTable counts open connections per peer and per stake class.
type connTable struct {
	mtx         sync.Mutex
	perPeer     map[string]int
	staked      int
	unstaked    int
	maxPerPeer  int
	maxStaked   int
	maxUnstaked int
}

// add returns the refusal reason, or "" if the connection was counted.
func (t *connTable) add(peer string, isStaked bool) string {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if isStaked {
		if t.staked >= t.maxStaked {
			return "staked_limit"
		}
	} else if t.unstaked >= t.maxUnstaked {
		return "unstaked_limit"
	}
	if t.perPeer[peer] >= t.maxPerPeer {
		return "peer_limit"
	}

	t.perPeer[peer]++
	if isStaked {
		t.staked++
	} else {
		t.unstaked++
	}
	return ""
}

func (t *connTable) remove(peer string, isStaked bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.perPeer[peer] <= 1 {
		delete(t.perPeer, peer)
	} else {
		t.perPeer[peer]--
	}
	if isStaked {
		t.staked--
	} else {
		t.unstaked--
	}
}

// ipLimiter keeps a token bucket per remote IP in a bounded LRU.
type ipLimiter struct {
	perMinute uint64

	mtx   sync.Mutex
	cache *lru.Cache
}

func newIPLimiter(perMinute uint64) (*ipLimiter, error) {
	cache, err := lru.New(ipLimiterCacheSize)
	if err != nil {
		return nil, err
	}
	return &ipLimiter{perMinute: perMinute, cache: cache}, nil
}

func (l *ipLimiter) allow(ip string) bool {
	if l.perMinute == 0 {
		return true
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	var lim *rate.Limiter
	if v, ok := l.cache.Get(ip); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), int(l.perMinute))
		l.cache.Add(ip, lim)
	}
	return lim.Allow()
}
