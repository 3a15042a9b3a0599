// Package sigverify decodes packets into transactions and checks their
// signatures before they reach the banking stage.
package sigverify

import (
	"github.com/tendermint/tpu/types"
)

// Rejection reasons reported to metrics.
const (
	ReasonDiscarded = "discarded"
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonNonVote   = "non_vote"
	ReasonDuplicate = "duplicate"
)

// Verifier turns a packet batch into the transactions that pass
// verification, in packet order.
type Verifier interface {
	// Verify returns the verified transactions and, for every rejected
	// packet, its reason.
	Verify(batch types.PacketBatch) (types.TxBatch, []string)
}

// TransactionVerifier checks ed25519 signatures. With rejectNonVote it
// also drops every transaction that is not a vote.
type TransactionVerifier struct {
	rejectNonVote bool
}

var _ Verifier = (*TransactionVerifier)(nil)

// NewTransactionVerifier returns a verifier for ordinary traffic.
func NewTransactionVerifier() *TransactionVerifier {
	return &TransactionVerifier{}
}

// NewRejectNonVoteVerifier returns a verifier for the vote ingress.
func NewRejectNonVoteVerifier() *TransactionVerifier {
	return &TransactionVerifier{rejectNonVote: true}
}

func (v *TransactionVerifier) Verify(batch types.PacketBatch) (types.TxBatch, []string) {
	out := types.TxBatch{Transactions: make([]*types.Transaction, 0, len(batch.Packets))}
	if len(batch.Packets) > 0 {
		out.Class = batch.Packets[0].Meta.Class
	}

	var rejected []string
	for _, p := range batch.Packets {
		if p.Meta.Discard {
			rejected = append(rejected, ReasonDiscarded)
			continue
		}
		tx, err := types.DecodeTransaction(p.Data)
		if err != nil {
			rejected = append(rejected, ReasonMalformed)
			continue
		}
		if v.rejectNonVote && !tx.IsVote() {
			rejected = append(rejected, ReasonNonVote)
			continue
		}
		if !tx.VerifySignatures() {
			rejected = append(rejected, ReasonSignature)
			continue
		}
		out.Transactions = append(out.Transactions, tx)
	}
	return out, rejected
}
