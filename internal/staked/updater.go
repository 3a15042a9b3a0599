package staked

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// Source supplies node stakes, typically from the current bank.
type Source interface {
	Stakes(ctx context.Context) (map[types.Pubkey]uint64, error)
}

// StaticSource is a fixed stake table.
type StaticSource map[types.Pubkey]uint64

func (s StaticSource) Stakes(context.Context) (map[types.Pubkey]uint64, error) {
	return s, nil
}

type overridesFile struct {
	Stakes map[string]uint64 `toml:"staked_map_id"`
}

// LoadOverrides reads a TOML file with a [staked_map_id] table mapping
// base58 pubkeys to stake. A missing file yields no overrides.
func LoadOverrides(path string) (map[types.Pubkey]uint64, error) {
	if path == "" {
		return nil, nil
	}
	var f overridesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading staked overrides %s: %w", path, err)
	}

	out := make(map[types.Pubkey]uint64, len(f.Stakes))
	for s, stake := range f.Stakes {
		pk, err := types.PubkeyFromString(s)
		if err != nil {
			return nil, fmt.Errorf("staked overrides %s: %w", path, err)
		}
		out[pk] = stake
	}
	return out, nil
}

// Updater refreshes a Registry from a Source merged with overrides.
type Updater struct {
	logger        log.Logger
	source        Source
	registry      *Registry
	overridesPath string
	interval      time.Duration
}

// NewUpdater returns an updater refreshing registry every interval.
func NewUpdater(logger log.Logger, source Source, registry *Registry, overridesPath string, interval time.Duration) *Updater {
	return &Updater{
		logger:        logger,
		source:        source,
		registry:      registry,
		overridesPath: overridesPath,
		interval:      interval,
	}
}

// Run refreshes once immediately and then on every interval until ctx is
// done. Refresh failures keep the previous snapshot.
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		if err := u.Refresh(ctx); err != nil {
			u.logger.Error("failed to refresh staked nodes", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Refresh builds and publishes a new snapshot. Overrides replace the
// source's stake for the same node.
func (u *Updater) Refresh(ctx context.Context) error {
	stakes, err := u.source.Stakes(ctx)
	if err != nil {
		return err
	}
	overrides, err := LoadOverrides(u.overridesPath)
	if err != nil {
		return err
	}

	merged := make(map[types.Pubkey]uint64, len(stakes)+len(overrides))
	for pk, s := range stakes {
		merged[pk] = s
	}
	for pk, s := range overrides {
		merged[pk] = s
	}

	snap := NewSnapshot(merged)
	u.registry.store(snap)
	u.logger.Debug("refreshed staked nodes", "nodes", snap.Len(), "total", snap.Total())
	return nil
}
