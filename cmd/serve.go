package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"resolvebot/internal/app"
)

func serveCmd() *cobra.Command {
	var debug bool

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the bot, ping scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			return app.Run(configPath)
		},
	}

	command.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return command
}
