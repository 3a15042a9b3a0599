package main

import (
	"context"
	"os"

	"github.com/tendermint/tpu/cmd/tpu/commands"
	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/libs/cli"
	"github.com/tendermint/tpu/libs/log"
)

func main() {
	ctx := context.Background()

	conf := config.DefaultConfig()
	logger := log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)

	rcmd := commands.RootCommand(conf, &logger)
	rcmd.AddCommand(
		commands.NewInitCmd(conf, &logger),
		commands.NewRunNodeCmd(conf, &logger),
		commands.NewShowIdentityCmd(conf),
		commands.NewShowBlacklistCmd(conf),
		commands.VersionCmd,
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(1)
	}
}
