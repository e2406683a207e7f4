package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/engine"
)

// SyncResult is the JSON form of a commit cycle.
type SyncResult struct {
	engine.CommitReport
	Errors []string `json:"errors,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Commit pending records to the remote sheet now",
		Long: `Run one commit cycle: push pending creates and updates, delete pending
deletes, then compact the local sequence so it matches the sheet again.

Records that fail stay pending and are retried by the next cycle.

Exit codes:
  0 - Every pending record was committed
  1 - Some records are still pending, or a sync is already running
  2 - Command error (config, database, no remote)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.SyncNow(cmd.Context())
	if errors.Is(err, engine.ErrBusy) {
		return WrapExitError(ExitFailure, "sync not started", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	result := SyncResult{CommitReport: report}
	for _, e := range report.Errors {
		result.Errors = append(result.Errors, e.Error())
	}

	if err := a.out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Pushed %d, deleted %d, compacted %d, stale %d, failed %d\n",
			report.Pushed, report.Deleted, report.Compacted, report.Stale, report.Failed)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}); err != nil {
		return err
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) left pending", report.Failed))
	}
	return nil
}
