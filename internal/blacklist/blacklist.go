// Package blacklist holds the set of protected accounts that ordinary
// transactions may never reference.
package blacklist

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/tendermint/tpu/types"
)

//go:embed accounts.toml
var accountsTOML string

type document struct {
	Accounts []string `toml:"accounts"`
}

// Set is an immutable set of account identities. A *Set is safe for
// concurrent reads without locking.
type Set struct {
	accounts map[types.Pubkey]struct{}
}

// Load parses the embedded denylist.
func Load() (*Set, error) {
	return Parse(accountsTOML)
}

// Parse builds a set from a TOML document with an "accounts" array of
// base58 pubkeys. Duplicates are collapsed.
func Parse(doc string) (*Set, error) {
	var d document
	if _, err := toml.Decode(doc, &d); err != nil {
		return nil, types.ConfigurationError{Param: "blacklist", Reason: err.Error()}
	}

	keys := make([]types.Pubkey, 0, len(d.Accounts))
	for i, s := range d.Accounts {
		pk, err := types.PubkeyFromString(s)
		if err != nil {
			return nil, types.ConfigurationError{
				Param:  fmt.Sprintf("blacklist.accounts[%d]", i),
				Reason: err.Error(),
			}
		}
		keys = append(keys, pk)
	}
	return New(keys...), nil
}

// New returns a set holding accounts.
func New(accounts ...types.Pubkey) *Set {
	s := &Set{accounts: make(map[types.Pubkey]struct{}, len(accounts))}
	for _, a := range accounts {
		s.accounts[a] = struct{}{}
	}
	return s
}

// With returns a new set holding the receiver's accounts and extra. The
// receiver is not modified.
func (s *Set) With(extra ...types.Pubkey) *Set {
	out := &Set{accounts: make(map[types.Pubkey]struct{}, len(s.accounts)+len(extra))}
	for a := range s.accounts {
		out.accounts[a] = struct{}{}
	}
	for _, a := range extra {
		out.accounts[a] = struct{}{}
	}
	return out
}

// Contains reports whether pk is protected.
func (s *Set) Contains(pk types.Pubkey) bool {
	_, ok := s.accounts[pk]
	return ok
}

// Intersects reports whether any of keys is protected.
func (s *Set) Intersects(keys []types.Pubkey) bool {
	for _, k := range keys {
		if s.Contains(k) {
			return true
		}
	}
	return false
}

// Len returns the number of protected accounts.
func (s *Set) Len() int { return len(s.accounts) }

// Accounts returns the protected accounts sorted bytewise.
func (s *Set) Accounts() []types.Pubkey {
	out := make([]types.Pubkey, 0, len(s.accounts))
	for a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
