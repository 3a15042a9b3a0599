package sigverify

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// DefaultDedupCacheSize is the number of recent signatures remembered for
// deduplication.
const DefaultDedupCacheSize = 1 << 17

// TxSender accepts verified batches without blocking.
type TxSender interface {
	Send(types.TxBatch) bool
}

// Stage verifies batches from in and sends non-empty results to out.
type Stage struct {
	logger   log.Logger
	name     string
	in       <-chan types.PacketBatch
	verifier Verifier
	out      TxSender
	dedup    *lru.Cache
	metrics  *Metrics
}

// NewStage returns a verification stage. name labels its metrics.
func NewStage(
	logger log.Logger,
	name string,
	in <-chan types.PacketBatch,
	verifier Verifier,
	out TxSender,
	metrics *Metrics,
) (*Stage, error) {
	dedup, err := lru.New(DefaultDedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &Stage{
		logger:   logger,
		name:     name,
		in:       in,
		verifier: verifier,
		out:      out,
		dedup:    dedup,
		metrics:  metrics,
	}, nil
}

// Run verifies until ctx is done or in is closed.
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-s.in:
			if !ok {
				return nil
			}
			verified, rejected := s.verifier.Verify(batch)
			for _, reason := range rejected {
				s.metrics.PacketsRejected.With("verifier", s.name, "reason", reason).Add(1)
			}

			verified.Transactions = s.deduplicate(verified.Transactions)
			if len(verified.Transactions) == 0 {
				continue
			}
			s.metrics.PacketsVerified.With("verifier", s.name).Add(float64(len(verified.Transactions)))
			if !s.out.Send(verified) {
				return nil
			}
		}
	}
}

// deduplicate drops transactions whose first signature was seen recently.
func (s *Stage) deduplicate(txs []*types.Transaction) []*types.Transaction {
	out := txs[:0]
	for _, tx := range txs {
		if seen, _ := s.dedup.ContainsOrAdd(tx.Signatures[0], struct{}{}); seen {
			s.metrics.PacketsRejected.With("verifier", s.name, "reason", ReasonDuplicate).Add(1)
			continue
		}
		out = append(out, tx)
	}
	return out
}
