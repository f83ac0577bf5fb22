package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

func Run() {
	var command = &cobra.Command{
		Use:   "resolvebot",
		Short: "Telegram bot that pings assignees until their tasks are resolved",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to the YAML config file")

	command.AddCommand(serveCmd())
	command.AddCommand(migrateCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}
