package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/types"
)

// NewShowIdentityCmd returns the command that prints the identity pubkey.
func NewShowIdentityCmd(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show-identity",
		Short: "Show this node's identity pubkey",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.LoadIdentity(conf.IdentityKeyFile())
			if err != nil {
				return fmt.Errorf("failed to load identity: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Pubkey.String())
			return nil
		},
	}
}
