package types

import (
	"time"

	"github.com/google/uuid"
)

// Bundle is an ordered group of transactions that must execute atomically,
// all in the same slot, or not at all.
type Bundle struct {
	ID           uuid.UUID
	Transactions []*Transaction
	ReceivedAt   time.Time
}

// NewBundle assigns a fresh identifier to txs.
func NewBundle(txs ...*Transaction) Bundle {
	return Bundle{
		ID:           uuid.New(),
		Transactions: txs,
		ReceivedAt:   time.Now(),
	}
}

// Accounts returns the distinct account keys referenced by the bundle, in
// first-seen order.
func (b Bundle) Accounts() []Pubkey {
	seen := make(map[Pubkey]struct{})
	var out []Pubkey
	for _, tx := range b.Transactions {
		for _, k := range tx.AccountKeys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Cost is the sum of the costs of the bundle's transactions.
func (b Bundle) Cost() uint64 {
	var c uint64
	for _, tx := range b.Transactions {
		c += tx.Cost()
	}
	return c
}
