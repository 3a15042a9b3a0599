package types

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	tmos "github.com/tendermint/tpu/libs/os"
)

// Identity is the validator's persistent ed25519 key. It authenticates
// the QUIC endpoints and the relayer and block engine sessions.
type Identity struct {
	// Base58 pubkey, derived from PrivKey on load
	Pubkey Pubkey
	// Private key
	PrivKey ed25519.PrivateKey
}

type identityJSON struct {
	Pubkey  string `json:"pubkey"`
	PrivKey string `json:"priv_key"`
}

func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{
		Pubkey:  id.Pubkey.String(),
		PrivKey: base58.Encode(id.PrivKey),
	})
}

func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	priv, err := base58.Decode(raw.PrivKey)
	if err != nil {
		return fmt.Errorf("invalid priv_key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid priv_key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	id.PrivKey = ed25519.PrivateKey(priv)
	id.Pubkey = pubkeyOf(id.PrivKey)

	if raw.Pubkey != "" && raw.Pubkey != id.Pubkey.String() {
		return fmt.Errorf("pubkey %s does not match priv_key", raw.Pubkey)
	}
	return nil
}

// SaveAs persists the identity to filePath.
func (id Identity) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, jsonBytes, 0600)
}

// LoadOrGenIdentity attempts to load the Identity from the given filePath.
// If the file does not exist, it generates and saves a new Identity.
func LoadOrGenIdentity(filePath string) (Identity, error) {
	if tmos.FileExists(filePath) {
		return LoadIdentity(filePath)
	}

	id, err := GenIdentity()
	if err != nil {
		return Identity{}, err
	}
	if err := id.SaveAs(filePath); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// GenIdentity generates a new identity.
func GenIdentity() (Identity, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Pubkey: pubkeyOf(priv), PrivKey: priv}, nil
}

// LoadIdentity loads the Identity located in filePath.
func LoadIdentity(filePath string) (Identity, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(jsonBytes, &id); err != nil {
		return Identity{}, fmt.Errorf("error reading identity from %v: %w", filePath, err)
	}
	return id, nil
}

func pubkeyOf(priv ed25519.PrivateKey) Pubkey {
	var pk Pubkey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk
}
