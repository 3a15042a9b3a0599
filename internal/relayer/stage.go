// Package relayer connects to the trusted relayer. The relayer's
// heartbeats drive the fetch stage's interception gate, and the packets it
// forwards go straight to signature verification.
package relayer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tendermint/tpu/internal/proxy"
	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

var (
	// ErrHeartbeatStarvation ends a session whose relayer stopped sending
	// heartbeats.
	ErrHeartbeatStarvation = errors.New("relayer heartbeat starvation")

	errConfigChanged = errors.New("relayer config changed")
)

const (
	configPollInterval = time.Second
	minBackoff         = 100 * time.Millisecond
	maxBackoff         = 10 * time.Second

	// IdentityHeader carries the validator identity on connect.
	IdentityHeader = "X-Validator-Identity"
)

// HeartbeatSender accepts heartbeats without blocking.
type HeartbeatSender interface {
	Send(types.Heartbeat) bool
}

// Stage maintains the relayer stream, reconnecting with backoff.
type Stage struct {
	logger     log.Logger
	cfg        *Config
	identity   types.Pubkey
	heartbeats HeartbeatSender
	packets    streamer.PacketSender
	metrics    *Metrics
}

// NewStage returns a relayer stage.
func NewStage(
	logger log.Logger,
	cfg *Config,
	identity types.Pubkey,
	heartbeats HeartbeatSender,
	packets streamer.PacketSender,
	metrics *Metrics,
) *Stage {
	return &Stage{
		logger:     logger,
		cfg:        cfg,
		identity:   identity,
		heartbeats: heartbeats,
		packets:    packets,
		metrics:    metrics,
	}
}

// Run keeps a session open until ctx is done. An empty URL disables the
// relayer until the config changes.
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
			s.logger.Info("relayer config changed; reconnecting")
			continue
		}

		delay := backoff.Next()
		s.logger.Error("relayer stream ended", "url", settings.URL, "err", err, "retry_in", delay)
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

	s.logger.Info("connected to relayer", "url", settings.URL)
	s.metrics.Connected.Set(1)
	defer func() {
		s.metrics.Connected.Set(0)
		s.metrics.Disconnects.Add(1)
	}()

	limits := settings.withDefaults()
	ticker := time.NewTicker(limits.ExpectedHeartbeatInterval)
	defer ticker.Stop()
	lastHeartbeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return true, nil

		case m, ok := <-stream.Messages():
			if !ok {
				return true, stream.Err()
			}
			switch m.Type {
			case proxy.TypeHeartbeat:
				hb, err := m.Heartbeat()
				if err != nil {
					return true, err
				}
				lastHeartbeat = time.Now()
				s.metrics.Heartbeats.Add(1)
				s.heartbeats.Send(hb)
			case proxy.TypePackets:
				s.metrics.PacketBatches.Add(1)
				s.packets.Send(m.PacketBatch())
			default:
				s.logger.Debug("ignoring relayer message", "type", string(m.Type))
			}

		case <-ticker.C:
			if time.Since(lastHeartbeat) > limits.OldestAllowedHeartbeat {
				return true, ErrHeartbeatStarvation
			}
			if s.cfg.Load() != settings {
				return true, errConfigChanged
			}
		}
	}
}
