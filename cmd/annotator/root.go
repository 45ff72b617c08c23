package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "annotator",
		Short:         "Bird image annotation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initialize()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to a config file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override server.log_level")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newRunCommand(opts),
		newImagesCommand(opts),
		newTokenCommand(opts),
	)
	return rootCmd
}

// initialize loads configuration and installs the process logger.
func (o *rootOptions) initialize() error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		if _, ok := logger.ParseLevel(o.logLevel); !ok {
			return fmt.Errorf("invalid log level %q", o.logLevel)
		}
		cfg.Server.LogLevel = o.logLevel
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	o.cfg = cfg
	o.logger = log
	return nil
}
