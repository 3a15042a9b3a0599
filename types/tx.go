package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
)

const (
	// PacketDataSize is the largest transaction that fits in one packet.
	PacketDataSize = 1232

	// SignatureSize is the length of an ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// MaxSignatures and MaxAccounts bound the u8 length prefixes.
	MaxSignatures = 127
	MaxAccounts   = 255

	// SignatureCost and WriteLockCost are the compute units charged per
	// signature and per locked account on top of the requested units.
	SignatureCost = 720
	WriteLockCost = 300
)

const flagVote = 1 << 0

// Signature is an ed25519 signature over a transaction message.
type Signature [SignatureSize]byte

// TxID identifies a transaction by the hash of its encoded bytes.
type TxID [sha256.Size]byte

func (id TxID) String() string { return fmt.Sprintf("%X", id[:]) }

// Transaction is the unit carried in one packet. The first len(Signatures)
// account keys are the signers; every account key is locked for writing
// during execution.
//
// Wire layout (little endian):
//
//	u8 numSigs | numSigs * 64 signature | u8 flags | u8 numAccounts |
//	numAccounts * 32 key | u32 compute units | u32 len | payload
//
// The signed message is everything after the signatures.
type Transaction struct {
	Signatures   []Signature
	Vote         bool
	AccountKeys  []Pubkey
	ComputeUnits uint32
	Payload      []byte
}

// DecodeTransaction parses raw packet bytes. Any structural problem yields an
// error wrapping ErrMalformedTransaction.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	if len(raw) > PacketDataSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds packet size", ErrMalformedTransaction, len(raw))
	}
	r := reader{buf: raw}

	numSigs := int(r.u8())
	if numSigs == 0 || numSigs > MaxSignatures {
		return nil, fmt.Errorf("%w: bad signature count %d", ErrMalformedTransaction, numSigs)
	}
	tx := &Transaction{Signatures: make([]Signature, numSigs)}
	for i := range tx.Signatures {
		copy(tx.Signatures[i][:], r.next(SignatureSize))
	}

	flags := r.u8()
	if flags&^flagVote != 0 {
		return nil, fmt.Errorf("%w: unknown flags %#x", ErrMalformedTransaction, flags)
	}
	tx.Vote = flags&flagVote != 0

	numAccounts := int(r.u8())
	if numAccounts < numSigs {
		return nil, fmt.Errorf("%w: %d accounts for %d signers", ErrMalformedTransaction, numAccounts, numSigs)
	}
	tx.AccountKeys = make([]Pubkey, numAccounts)
	for i := range tx.AccountKeys {
		copy(tx.AccountKeys[i][:], r.next(PubkeySize))
	}

	tx.ComputeUnits = r.u32()
	n := r.u32()
	tx.Payload = append([]byte(nil), r.next(int(n))...)

	if r.err {
		return nil, fmt.Errorf("%w: truncated", ErrMalformedTransaction)
	}
	if r.off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, len(raw)-r.off)
	}
	return tx, nil
}

// Message returns the bytes covered by the signatures.
func (tx *Transaction) Message() []byte {
	buf := make([]byte, 0, 2+len(tx.AccountKeys)*PubkeySize+8+len(tx.Payload))
	var flags byte
	if tx.Vote {
		flags |= flagVote
	}
	buf = append(buf, flags, byte(len(tx.AccountKeys)))
	for i := range tx.AccountKeys {
		buf = append(buf, tx.AccountKeys[i][:]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, tx.ComputeUnits)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Payload)))
	return append(buf, tx.Payload...)
}

// Encode returns the wire form of tx.
func (tx *Transaction) Encode() []byte {
	msg := tx.Message()
	buf := make([]byte, 0, 1+len(tx.Signatures)*SignatureSize+len(msg))
	buf = append(buf, byte(len(tx.Signatures)))
	for i := range tx.Signatures {
		buf = append(buf, tx.Signatures[i][:]...)
	}
	return append(buf, msg...)
}

// ID returns the hash of the encoded transaction.
func (tx *Transaction) ID() TxID {
	return sha256.Sum256(tx.Encode())
}

// Signers returns the account keys that must have signed tx.
func (tx *Transaction) Signers() []Pubkey {
	n := len(tx.Signatures)
	if n > len(tx.AccountKeys) {
		n = len(tx.AccountKeys)
	}
	return tx.AccountKeys[:n]
}

// IsVote reports whether tx is a vote.
func (tx *Transaction) IsVote() bool { return tx.Vote }

// Cost is the compute cost charged against block capacity.
func (tx *Transaction) Cost() uint64 {
	return uint64(tx.ComputeUnits) +
		uint64(len(tx.Signatures))*SignatureCost +
		uint64(len(tx.AccountKeys))*WriteLockCost
}

// VerifySignatures checks every signature against its signer.
func (tx *Transaction) VerifySignatures() bool {
	if len(tx.Signatures) == 0 || len(tx.Signatures) > len(tx.AccountKeys) {
		return false
	}
	msg := tx.Message()
	for i, sig := range tx.Signatures {
		if !ed25519.VerifyWithOptions(tx.AccountKeys[i][:], msg, sig[:], verifyOptions) {
			return false
		}
	}
	return true
}

var verifyOptions = &ed25519.Options{Verify: ed25519.VerifyOptionsZIP_215}

// NewSignedTransaction builds a transaction signed by signers. The signers'
// public keys come first in the account list, followed by accounts.
func NewSignedTransaction(
	signers []ed25519.PrivateKey,
	accounts []Pubkey,
	computeUnits uint32,
	vote bool,
	payload []byte,
) *Transaction {
	tx := &Transaction{
		Signatures:   make([]Signature, len(signers)),
		Vote:         vote,
		AccountKeys:  make([]Pubkey, 0, len(signers)+len(accounts)),
		ComputeUnits: computeUnits,
		Payload:      payload,
	}
	for _, sk := range signers {
		var pk Pubkey
		copy(pk[:], sk.Public().(ed25519.PublicKey))
		tx.AccountKeys = append(tx.AccountKeys, pk)
	}
	tx.AccountKeys = append(tx.AccountKeys, accounts...)

	msg := tx.Message()
	for i, sk := range signers {
		copy(tx.Signatures[i][:], ed25519.Sign(sk, msg))
	}
	return tx
}

// reader walks a byte slice, latching err on the first short read.
type reader struct {
	buf []byte
	off int
	err bool
}

func (r *reader) next(n int) []byte {
	if r.err || n < 0 || r.off+n > len(r.buf) {
		r.err = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
