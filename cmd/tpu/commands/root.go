package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/libs/cli"
	"github.com/tendermint/tpu/libs/log"
)

// ParseConfig retrieves the default environment configuration,
// sets up the TPU root and ensures that the root exists
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point. The logger is
// replaced once the configuration is known.
func RootCommand(conf *config.Config, logger *log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tpu",
		Short: "Transaction processing unit for a block-producing validator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			if err := cli.BindFlagsLoadViper(cmd, args); err != nil {
				return err
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			config.EnsureRoot(conf.RootDir)

			l, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
			if err != nil {
				return err
			}
			*logger = l
			return nil
		},
	}
	cmd.PersistentFlags().StringP(cli.HomeFlag, "", os.ExpandEnv(filepath.Join("$HOME", config.DefaultTPUDir)), "directory for config and data")
	cmd.PersistentFlags().Bool(cli.TraceFlag, false, "print out full stack trace on errors")
	cmd.PersistentFlags().String(cli.LogLevelFlag, conf.LogLevel, "log level")
	cobra.OnInitialize(func() { cli.InitEnv("TPU") })
	return cmd
}
