package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/internal/blacklist"
)

// NewShowBlacklistCmd returns the command that prints the accounts
// ordinary transactions may not reference.
func NewShowBlacklistCmd(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show-blacklist",
		Short: "Show the accounts ordinary transactions may not reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			bl, err := blacklist.Load()
			if err != nil {
				return err
			}
			payment, _, _, err := conf.Tip.Pubkeys()
			if err != nil {
				return err
			}
			if !payment.IsZero() {
				bl = bl.With(payment)
			}
			for _, a := range bl.Accounts() {
				fmt.Fprintln(cmd.OutOrStdout(), a.String())
			}
			return nil
		},
	}
}
