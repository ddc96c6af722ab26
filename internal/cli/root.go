// Package cli implements the jieqibook command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jieqibox/openingbook/internal/config"
	"github.com/jieqibox/openingbook/internal/logx"
	"github.com/jieqibox/openingbook/internal/store"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "jieqibook.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the jieqibook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jieqibook",
		Short: "Jieqi opening book",
		Long: `Manage a Jieqi opening book: candidate moves per position with priority,
win/draw/loss counters, an allowed flag and a comment, stored in a single file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database file (overrides db_path from the config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", DefaultConfigPath, "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}

// openStore builds the logger and store for one command invocation. Logs go
// to the command's stderr so JSON output on stdout stays clean.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logx.NewLogger(logx.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		Out:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return store.New(cfg.StoreConfig(logger))
}

// globalArgs renders the global flags so nested invocations (shell) see the
// same database and settings.
func (o *RootOptions) globalArgs() []string {
	var args []string
	if o.DBPath != "" {
		args = append(args, "--db", o.DBPath)
	}
	if o.ConfigPath != "" {
		args = append(args, "--config", o.ConfigPath)
	}
	if o.LogLevel != "" {
		args = append(args, "--log-level", o.LogLevel)
	}
	if o.Format != "" {
		args = append(args, "--format", o.Format)
	}
	return args
}
