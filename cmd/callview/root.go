package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dkeye/callview/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "callview",
		Short:         "callview: join multi-party video rooms from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newJoinCmd(),
		newDevicesCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}
