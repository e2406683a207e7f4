package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is the YAML config path. Empty means ./gigledger.yaml if it
	// exists, defaults otherwise.
	Config string

	// Database and Remote override the config file when set.
	Database string
	Remote   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gigledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gigledger",
		Short: "gigledger - offline-first gig work ledger",
		Long: `Record trips, shifts and expenses locally and keep them in sync with a
positional remote sheet.

Edits are committed to the remote sheet by "sync" or by the "poll" loop.
Shift totals, reference aggregates and daily/weekly/yearly rollups are
derived locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.Config, "config", "c", "", "config file (default ./gigledger.yaml)")
	flags.StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&opts.Remote, "remote", "", "remote sheet URL (overrides config)")

	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewDeliveriesCommand(opts))
	cmd.AddCommand(NewSheetServerCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
