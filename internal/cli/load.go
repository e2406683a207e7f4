package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/engine"
	"github.com/roach88/gigledger/internal/ledger"
)

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Replace local data with the remote sheet's",
		Long: `Fetch every sheet and replace the local collections with it.

Collections with unsaved local changes are left untouched; run "sync"
first to commit them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, cmd)
		},
	}
}

func runLoad(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Load(cmd.Context())
	if err != nil {
		return busyOr(err, "load failed")
	}

	return a.out.Emit(report, func(w io.Writer) {
		for _, c := range ledger.SyncableCollections {
			if n, ok := report.Records[c]; ok {
				fmt.Fprintf(w, "%-9s %d loaded\n", c, n)
			}
		}
		if report.Blank > 0 {
			fmt.Fprintf(w, "%d blank row(s) will be removed by the next sync\n", report.Blank)
		}
		for _, c := range report.Skipped {
			fmt.Fprintf(w, "%-9s skipped (unsaved changes)\n", c)
		}
		fmt.Fprintf(w, "Entities: %d, rollups: %d\n", report.Entities, report.Rollups)
	})
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append",
		Short: "Merge the remote address and name sheets into local aggregates",
		Long: `Fetch the remote addresses and names sheets and merge them into the
local aggregates. Counts and totals accumulate, so run it once per import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(rootOpts, cmd)
		},
	}
}

func runAppend(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.engine.Append(cmd.Context())
	if err != nil {
		return busyOr(err, "append failed")
	}
	return a.out.Emit(map[string]int{"entities": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Merged %d entities\n", n)
	})
}

// busyOr maps engine.ErrBusy and other failures to exit errors.
func busyOr(err error, message string) error {
	if errors.Is(err, engine.ErrBusy) {
		return WrapExitError(ExitFailure, "sync in progress", err)
	}
	return WrapExitError(ExitFailure, message, err)
}
