package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewDeliveriesCommand creates the deliveries command.
func NewDeliveriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deliveries",
		Short: "Group trips by drop-off address and customer name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ds, err := a.engine.Deliveries(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read trips", err)
				}
				return a.out.Emit(ds, func(w io.Writer) {
					if len(ds) == 0 {
						fmt.Fprintln(w, "No deliveries.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ADDRESS\tNAME\tVISITS\tTOTAL\tTIPS")
					for _, d := range ds {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
							d.Address, d.Name, d.Visits, d.Total.StringFixed(2), d.Tip.StringFixed(2))
					}
					tw.Flush()
				})
			})
		},
	}
}
