package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/liamcoop/specetl/internal/config"
	"github.com/liamcoop/specetl/internal/logger"
)

type rootFlags struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "specetl",
		Short: "Declarative validation and business rules for tabular data",
		Long: `specetl loads a JSON specification of validation rules, business rules and
constants, applies it to a CSV dataset and writes the processed dataset together
with a summary report.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newRunCmd(flags),
		newLintCmd(),
		newSampleCmd(),
		newMigrateCmd(flags),
	)
	return cmd
}

// setup loads the configuration and builds the logger. Logs go to the
// command's error stream so stdout stays free for reports.
func (f *rootFlags) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, func(context.Context) error, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	log, shutdown, err := logger.New(cmd.Context(), logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OTEL:        cfg.Log.OTEL,
		ServiceName: cfg.Log.ServiceName,
		SampleRate:  cfg.Log.SampleRate,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, shutdown, nil
}
