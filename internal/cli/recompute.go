package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute every shift's totals and rebuild the rollups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.Recompute(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "recompute failed", err)
			}
			return a.out.Emit(map[string]int{"shifts_changed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%d shift(s) changed; rollups rebuilt\n", n)
			})
		},
	}
}
