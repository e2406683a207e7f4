package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/ledger"
)

// PendingResult is the JSON form of the pending command.
type PendingResult struct {
	Total       int                       `json:"total"`
	Collections map[ledger.Collection]int `json:"collections"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show records awaiting commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(rootOpts, cmd)
		},
	}
}

func runPending(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	result := PendingResult{Collections: make(map[ledger.Collection]int)}
	for _, c := range ledger.SyncableCollections {
		recs, err := a.engine.Tracker().Pending(ctx, c)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read pending records", err)
		}
		result.Collections[c] = len(recs)
		result.Total += len(recs)
	}

	return a.out.Emit(result, func(w io.Writer) {
		if result.Total == 0 {
			fmt.Fprintln(w, "Nothing pending.")
			return
		}
		for _, c := range ledger.SyncableCollections {
			fmt.Fprintf(w, "%-9s %d\n", c, result.Collections[c])
		}
		fmt.Fprintf(w, "%-9s %d\n", "total", result.Total)
	})
}
