// Package votelistener feeds votes observed through gossip into the
// banking stage.
package votelistener

import (
	"context"

	"github.com/tendermint/tpu/internal/sigverify"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

const verifierName = "gossip_vote"

// Listener verifies gossip vote batches and forwards them to the
// gossip-vote banking channel.
type Listener struct {
	logger   log.Logger
	in       <-chan types.PacketBatch
	verifier sigverify.Verifier
	out      sigverify.TxSender
	metrics  *sigverify.Metrics
}

// NewListener returns a listener. verifier should only pass votes.
func NewListener(
	logger log.Logger,
	in <-chan types.PacketBatch,
	verifier sigverify.Verifier,
	out sigverify.TxSender,
	metrics *sigverify.Metrics,
) *Listener {
	return &Listener{
		logger:   logger,
		in:       in,
		verifier: verifier,
		out:      out,
		metrics:  metrics,
	}
}

// Run forwards votes until ctx is done or the gossip channel closes.
func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-l.in:
			if !ok {
				l.logger.Info("gossip vote channel closed")
				return nil
			}
			votes, rejected := l.verifier.Verify(batch)
			for _, reason := range rejected {
				l.metrics.PacketsRejected.With("verifier", verifierName, "reason", reason).Add(1)
			}
			if len(votes.Transactions) == 0 {
				continue
			}
			l.metrics.PacketsVerified.With("verifier", verifierName).Add(float64(len(votes.Transactions)))
			if !l.out.Send(votes) {
				return nil
			}
		}
	}
}
