// Package fetch owns the ingress sockets and the interception gate that
// decides whether primary-ingress traffic reaches signature verification.
package fetch

import (
	"context"
	"net"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// StageConfig holds the sockets and queues of the fetch stage.
type StageConfig struct {
	Transactions        []net.PacketConn
	TransactionForwards []net.PacketConn
	Vote                []net.PacketConn

	// UDPEnabled receives transactions and forwards over UDP. Votes are
	// always received.
	UDPEnabled bool
	Coalesce   time.Duration

	// Intercept receives ordinary and forwarded batches, Vote receives
	// votes. Forwarded batches go through ForwardedOut/ForwardedIn first.
	Intercept    streamer.PacketSender
	VoteOut      streamer.PacketSender
	ForwardedOut streamer.PacketSender
	ForwardedIn  <-chan types.PacketBatch
}

// Stage runs a receiver per socket plus the forwarder loop.
type Stage struct {
	logger  log.Logger
	cfg     StageConfig
	metrics *streamer.Metrics
}

// NewStage returns a fetch stage.
func NewStage(logger log.Logger, cfg StageConfig, metrics *streamer.Metrics) *Stage {
	if cfg.Coalesce <= 0 {
		cfg.Coalesce = streamer.DefaultCoalesce
	}
	return &Stage{logger: logger, cfg: cfg, metrics: metrics}
}

// Run receives until ctx is done. If any receiver fails the others are
// stopped and the first error is returned.
func (s *Stage) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(taskgroup.Trigger(cancel))
	spawn := func(conns []net.PacketConn, class types.PacketClass, out streamer.PacketSender) {
		for _, conn := range conns {
			r := streamer.NewReceiver(s.logger, conn, class, out, s.cfg.Coalesce, s.metrics)
			g.Go(func() error { return r.Run(ctx) })
		}
	}

	if s.cfg.UDPEnabled {
		spawn(s.cfg.Transactions, types.Ordinary, s.cfg.Intercept)
		spawn(s.cfg.TransactionForwards, types.Forwarded, s.cfg.ForwardedOut)
	}
	spawn(s.cfg.Vote, types.Vote, s.cfg.VoteOut)

	g.Go(func() error { return s.forward(ctx) })

	return g.Wait()
}

// forward marks forwarded batches and merges them into the intercept queue.
func (s *Stage) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-s.cfg.ForwardedIn:
			if !ok {
				return nil
			}
			for i := range batch.Packets {
				batch.Packets[i].Meta.Forwarded = true
			}
			if !s.cfg.Intercept.Send(batch) {
				return nil
			}
		}
	}
}
