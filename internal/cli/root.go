/*
PURPOSE:
  Defines the root Cobra command for the fio-tuner CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Logging must be configured before any subcommand logs.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/fio-tuner/main.go
  - Calls: Child commands (run, parse, config)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

RELATED FILES:
  - cmd/fio-tuner/main.go
*/

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/daryltucker/fio-tuner/internal/config"
	"github.com/daryltucker/fio-tuner/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string

	logLevel  string
	logFormat string

	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fio-tuner",
		Short: "Find the fio numjobs/iodepth pair with the highest IOPS",
		Long: `fio-tuner runs fio repeatedly, doubling iodepth for each numjobs value
and numjobs across levels, until IOPS stop improving by more than the configured
threshold. Use 'run --help' for search options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fio_tuner.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json, logfmt")
	return cmd
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads the config file and applies the global log flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := output.Configure(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}
