// Command server runs the authledger HTTP API and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/logger"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	EnvFile string
	Level   string

	cfg config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "authledger",
		Short:         "Credential and versioned-record service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv(opts.EnvFile)
			opts.cfg = config.Load()
			level := opts.cfg.LogLevel
			if opts.Level != "" {
				level = opts.Level
			}
			l := logger.New()
			if err := l.Init(level); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			opts.log = l.Log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Level, "log-level", "", "zap level, overrides LOG_LEVEL")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUserAddCommand(opts),
		newConsumeCommand(opts),
		newSweepCommand(opts),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
