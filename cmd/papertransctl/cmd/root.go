// Package cmd implements the papertransctl commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

// NewCommand returns the root command for the papertransctl CLI.
func NewCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
		cfg        *config.Config
		log        *logger.Logger
	)

	cmd := &cobra.Command{
		Use:          "papertransctl",
		Short:        "papertrans command line client",
		Long:         "papertransctl translates PDFs without the server and inspects the glossary and paper stores.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadWithPath(configPath)
			if err != nil {
				return err
			}

			// Command output goes to stdout, logs to stderr.
			level := "warn"
			if verbose {
				level = "debug"
			}
			log, err = logger.NewLogger(logger.LoggingConfig{
				Level:      level,
				Format:     "console",
				OutputPath: "stderr",
			})
			if err != nil {
				return err
			}
			logger.SetDefault(log)
			return nil
		},
	}

	cmd.AddCommand(
		newTranslateCommand(&cfg, &log),
		newGlossaryCommand(&cfg, &log),
		newPapersCommand(&cfg, &log),
	)

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "directory containing config.yaml")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}
