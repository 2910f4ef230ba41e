package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendermint/tm-exchange/cmd/tm-exchange/commands"
	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/libs/cli"
	"github.com/tendermint/tm-exchange/libs/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.MakeSimulateCommand(conf, logger),
		commands.VersionCmd,
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(1)
	}
}
