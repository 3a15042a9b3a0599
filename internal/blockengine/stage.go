// Package blockengine connects to the block engine, which auctions block
// space: it forwards packets and sends bundles, and learns which block
// builder the validator pays.
package blockengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tendermint/tpu/internal/proxy"
	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/internal/tip"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

var errConfigChanged = errors.New("block engine config changed")

const (
	configPollInterval = time.Second
	feeInfoInterval    = 100 * time.Millisecond
	minBackoff         = 100 * time.Millisecond
	maxBackoff         = 10 * time.Second

	// IdentityHeader carries the validator identity on connect.
	IdentityHeader = "X-Validator-Identity"
)

// BundleSender accepts bundles without blocking.
type BundleSender interface {
	Send(types.Bundle) bool
}

// Stage maintains the block-engine stream.
type Stage struct {
	logger   log.Logger
	cfg      *Config
	identity types.Pubkey
	feeInfo  *tip.FeeInfoCell
	bundles  BundleSender
	packets  streamer.PacketSender
	metrics  *Metrics
}

// NewStage returns a block-engine stage. feeInfo is only read.
func NewStage(
	logger log.Logger,
	cfg *Config,
	identity types.Pubkey,
	feeInfo *tip.FeeInfoCell,
	bundles BundleSender,
	packets streamer.PacketSender,
	metrics *Metrics,
) *Stage {
	return &Stage{
		logger:   logger,
		cfg:      cfg,
		identity: identity,
		feeInfo:  feeInfo,
		bundles:  bundles,
		packets:  packets,
		metrics:  metrics,
	}
}

// Run keeps a session open until ctx is done, reconnecting with backoff.
func (s *Stage) Run(ctx context.Context) error {
	backoff := proxy.NewBackoff(minBackoff, maxBackoff)

	for ctx.Err() == nil {
		settings := s.cfg.Load()
		if settings.URL == "" {
			if !proxy.Sleep(ctx, configPollInterval) {
				return nil
			}
			continue
		}

		connected, err := s.session(ctx, settings)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff.Reset()
		}
		if errors.Is(err, errConfigChanged) {
			s.logger.Info("block engine config changed; reconnecting")
			continue
		}

		delay := backoff.Next()
		s.logger.Error("block engine stream ended", "url", settings.URL, "err", err, "retry_in", delay)
		if !proxy.Sleep(ctx, delay) {
			return nil
		}
	}
	return nil
}

func (s *Stage) session(ctx context.Context, settings Settings) (bool, error) {
	header := http.Header{}
	header.Set(IdentityHeader, s.identity.String())

	stream, err := proxy.Dial(ctx, settings.URL, header)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	info, version := s.feeInfo.Load()
	if err := stream.Send(proxy.Message{Type: proxy.TypeSubscribe, Identity: s.identity.String(), FeeInfo: &info}); err != nil {
		return false, err
	}

	s.logger.Info("connected to block engine", "url", settings.URL, "block_builder", info.BlockBuilder.String())
	s.metrics.Connected.Set(1)
	defer func() {
		s.metrics.Connected.Set(0)
		s.metrics.Disconnects.Add(1)
	}()

	ticker := time.NewTicker(feeInfoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil

		case m, ok := <-stream.Messages():
			if !ok {
				return true, stream.Err()
			}
			s.handle(m)

		case <-ticker.C:
			if s.cfg.Load() != settings {
				return true, errConfigChanged
			}
			cur, v := s.feeInfo.Load()
			if v == version {
				continue
			}
			version = v
			if err := stream.Send(proxy.Message{Type: proxy.TypeFeeInfo, FeeInfo: &cur}); err != nil {
				return true, err
			}
			s.metrics.FeeInfoUpdates.Add(1)
		}
	}
}

func (s *Stage) handle(m proxy.Message) {
	switch m.Type {
	case proxy.TypePackets:
		s.metrics.PacketBatches.Add(1)
		s.packets.Send(m.PacketBatch())

	case proxy.TypeBundle:
		if m.Bundle == nil {
			return
		}
		bundle, err := DecodeBundle(*m.Bundle)
		if err != nil {
			s.metrics.BundlesRejected.Add(1)
			s.logger.Debug("dropping bundle", "uuid", m.Bundle.UUID, "err", err)
			return
		}
		s.metrics.Bundles.Add(1)
		s.bundles.Send(bundle)

	default:
		s.logger.Debug("ignoring block engine message", "type", string(m.Type))
	}
}

// DecodeBundle decodes and verifies every transaction of a bundle. A
// single bad transaction rejects the whole bundle.
func DecodeBundle(m proxy.BundleMessage) (types.Bundle, error) {
	if len(m.Transactions) == 0 {
		return types.Bundle{}, errors.New("empty bundle")
	}

	id, err := uuid.Parse(m.UUID)
	if err != nil {
		id = uuid.New()
	}

	txs := make([]*types.Transaction, 0, len(m.Transactions))
	for i, raw := range m.Transactions {
		tx, err := types.DecodeTransaction(raw)
		if err != nil {
			return types.Bundle{}, fmt.Errorf("transaction %d: %w", i, err)
		}
		if !tx.VerifySignatures() {
			return types.Bundle{}, fmt.Errorf("transaction %d: invalid signature", i)
		}
		txs = append(txs, tx)
	}

	return types.Bundle{ID: id, Transactions: txs, ReceivedAt: time.Now()}, nil
}
