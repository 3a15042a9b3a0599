package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// Entry is a unit of the ledger: either a tick (no transactions) or a group
// of transactions recorded at a tick height.
type Entry struct {
	Slot         uint64
	TickHeight   uint64
	NumHashes    uint64
	Hash         [sha256.Size]byte
	Transactions []*Transaction
}

// IsTick reports whether e carries no transactions.
func (e *Entry) IsTick() bool { return len(e.Transactions) == 0 }

// Encode serializes e for broadcast.
func (e *Entry) Encode() []byte {
	buf := make([]byte, 0, 3*8+sha256.Size+4)
	buf = binary.LittleEndian.AppendUint64(buf, e.Slot)
	buf = binary.LittleEndian.AppendUint64(buf, e.TickHeight)
	buf = binary.LittleEndian.AppendUint64(buf, e.NumHashes)
	buf = append(buf, e.Hash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Transactions)))
	for _, tx := range e.Transactions {
		raw := tx.Encode()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(raw)))
		buf = append(buf, raw...)
	}
	return buf
}

// NextHash chains prev with the transaction ids of txs.
func NextHash(prev [sha256.Size]byte, txs []*Transaction) [sha256.Size]byte {
	h := sha256.New()
	h.Write(prev[:])
	for _, tx := range txs {
		id := tx.ID()
		h.Write(id[:])
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EntryNotification is published to an observer for every entry, before
// the entry is broadcast.
type EntryNotification struct {
	Slot  uint64
	Index int
	Entry *Entry
}
