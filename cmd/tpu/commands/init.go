package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/libs/log"
	tmos "github.com/tendermint/tpu/libs/os"
	"github.com/tendermint/tpu/types"
)

// NewInitCmd returns the command that writes the default config file and
// an identity key into the home directory.
func NewInitCmd(conf *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the config file and identity key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFiles(conf, *logger)
		},
	}
}

func initFiles(conf *config.Config, logger log.Logger) error {
	identityFile := conf.IdentityKeyFile()
	if tmos.FileExists(identityFile) {
		logger.Info("found identity", "path", identityFile)
	} else {
		id, err := types.GenIdentity()
		if err != nil {
			return err
		}
		if err := id.SaveAs(identityFile); err != nil {
			return err
		}
		logger.Info("generated identity", "path", identityFile, "pubkey", id.Pubkey.String())
	}

	configFile := conf.ConfigFile()
	if tmos.FileExists(configFile) {
		logger.Info("found config file", "path", configFile)
		return nil
	}
	if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
		return err
	}
	logger.Info("generated config file", "path", configFile)
	return nil
}
