// Package tip tracks the tip payment program and the block-builder fee
// record shared by the bundle and block-engine stages.
package tip

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/tendermint/tpu/types"
)

// NumTipAccounts is the number of tip accounts owned by the tip program.
const NumTipAccounts = 8

// Config holds the tip programs and the block builder the validator pays
// its commission to.
type Config struct {
	TipPaymentProgramID      types.Pubkey
	TipDistributionProgramID types.Pubkey
	BlockBuilder             types.Pubkey
	BlockBuilderCommission   uint64
}

// Manager derives the tip accounts from the tip payment program and tracks
// the block-builder settings the bundle stage applies at each slot.
type Manager struct {
	cfg      Config
	accounts []types.Pubkey

	mtx     sync.Mutex
	builder FeeInfo
}

// NewManager returns a manager for cfg.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:     cfg,
		builder: FeeInfo{BlockBuilder: cfg.BlockBuilder, Commission: cfg.BlockBuilderCommission},
	}
	for i := 0; i < NumTipAccounts; i++ {
		m.accounts = append(m.accounts, derive(cfg.TipPaymentProgramID, fmt.Sprintf("TIP_ACCOUNT_%d", i)))
	}
	return m
}

func derive(program types.Pubkey, seed string) types.Pubkey {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(program[:])
	var pk types.Pubkey
	copy(pk[:], h.Sum(nil))
	return pk
}

func (m *Manager) TipPaymentProgramID() types.Pubkey      { return m.cfg.TipPaymentProgramID }
func (m *Manager) TipDistributionProgramID() types.Pubkey { return m.cfg.TipDistributionProgramID }

// TipAccounts returns the accounts tips are paid into.
func (m *Manager) TipAccounts() []types.Pubkey {
	return append([]types.Pubkey(nil), m.accounts...)
}

// IsTipAccount reports whether pk is one of the tip accounts.
func (m *Manager) IsTipAccount(pk types.Pubkey) bool {
	for _, a := range m.accounts {
		if a == pk {
			return true
		}
	}
	return false
}

// SetBlockBuilder changes the block builder applied from the next slot.
func (m *Manager) SetBlockBuilder(info FeeInfo) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.builder = info
}

// BlockBuilder returns the configured block builder.
func (m *Manager) BlockBuilder() FeeInfo {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.builder
}

// FeeInfo is the block builder that receives the validator's commission.
type FeeInfo struct {
	BlockBuilder types.Pubkey `json:"block_builder"`
	Commission   uint64       `json:"block_builder_commission"`
}

// FeeInfoCell is the one lock-guarded record shared between the bundle
// stage, which writes it, and the block-engine stage, which reads it.
type FeeInfoCell struct {
	mtx     sync.Mutex
	info    FeeInfo
	version uint64
}

// NewFeeInfoCell returns a cell holding initial.
func NewFeeInfoCell(initial FeeInfo) *FeeInfoCell {
	return &FeeInfoCell{info: initial}
}

// Load returns the current record and its version. The version increases
// on every Store that changes the record.
func (c *FeeInfoCell) Load() (FeeInfo, uint64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.info, c.version
}

// Store replaces the record. It reports whether the record changed.
func (c *FeeInfoCell) Store(info FeeInfo) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.info == info {
		return false
	}
	c.info = info
	c.version++
	return true
}
