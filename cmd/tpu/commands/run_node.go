package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/libs/log"
	tmos "github.com/tendermint/tpu/libs/os"
	"github.com/tendermint/tpu/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a TPU node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	// bind flags
	cmd.Flags().String("moniker", conf.Moniker, "node name")
	cmd.Flags().String("identity-key-file", conf.IdentityKey, "path to the identity key file")

	// ingress flags
	cmd.Flags().String("tpu.laddr", conf.TPU.ListenAddress, "UDP transaction listen address")
	cmd.Flags().String("tpu.quic-laddr", conf.TPU.QUICListenAddress, "QUIC transaction listen address; empty disables it")
	cmd.Flags().Bool("tpu.udp-enabled", conf.TPU.UDPEnabled, "receive transactions and forwards over UDP")

	// relayer and block engine flags
	cmd.Flags().String("relayer.url", conf.Relayer.URL, "websocket URL of the relayer")
	cmd.Flags().String("block-engine.url", conf.BlockEngine.URL, "websocket URL of the block engine")

	// broadcast flags
	cmd.Flags().StringSlice("broadcast.peers", conf.Broadcast.Peers, "comma-delimited host:port shred destinations")
	cmd.Flags().String("broadcast.shred-receiver-address", conf.Broadcast.ShredReceiverAddress, "address receiving a copy of every shred")

	cmd.Flags().Bool("tracer.enabled", conf.Tracer.Enabled, "record every batch sent to the banking stage")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(conf *config.Config, logger *log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the TPU node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := node.New(conf, *logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			(*logger).Info("started node", "node", n.String(), "identity", n.Identity().String())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(*logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						(*logger).Error("unable to stop the node", "error", err)
					}
				}
			})

			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
