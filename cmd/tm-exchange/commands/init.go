package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/libs/log"
)

// MakeInitCommand returns the command writing a default config.toml into the
// home directory. An existing file is left untouched.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the home directory with a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefaultConfigFileIfNone(conf.RootDir); err != nil {
				return err
			}
			logger.Info("initialized home", "config", conf.ConfigFile())
			return nil
		},
	}
}
