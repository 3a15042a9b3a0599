package types

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length in bytes of an account identity.
const PubkeySize = 32

// Pubkey identifies an account. Its text form is base58.
type Pubkey [PubkeySize]byte

// PubkeyFromString parses the base58 form of a pubkey.
func PubkeyFromString(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeySize {
		return pk, fmt.Errorf("invalid pubkey %q: expected %d bytes, got %d", s, PubkeySize, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPubkey is like PubkeyFromString but panics on error. For constants.
func MustPubkey(s string) Pubkey {
	pk, err := PubkeyFromString(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("expected %d bytes, got %d", PubkeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (pk Pubkey) String() string { return base58.Encode(pk[:]) }

// IsZero reports whether pk is the all-zero key.
func (pk Pubkey) IsZero() bool { return pk == Pubkey{} }

// Compare orders pubkeys bytewise.
func (pk Pubkey) Compare(other Pubkey) int { return bytes.Compare(pk[:], other[:]) }

func (pk Pubkey) MarshalText() ([]byte, error) { return []byte(pk.String()), nil }

func (pk *Pubkey) UnmarshalText(text []byte) error {
	v, err := PubkeyFromString(string(text))
	if err != nil {
		return err
	}
	*pk = v
	return nil
}
