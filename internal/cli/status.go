package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/statusapi"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Addr string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync status of a running poller",
		Long: `Query the status API of a running "gigledger poll" and print its state,
last sync time, pending count and recent messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "status API address (overrides status.addr)")
	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	addr := cfg.Status.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if addr == "" {
		return NewExitError(ExitCommandError, "no status address: set status.addr or pass --addr")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Remote.Timeout)
	defer cancel()

	resp, err := fetchStatus(ctx, addr)
	if err != nil {
		return WrapExitError(ExitFailure, "poller not reachable", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	return out.Emit(resp, func(w io.Writer) {
		cur := resp.Current
		fmt.Fprintf(w, "State:     %s", cur.State)
		if cur.Operation != "" {
			fmt.Fprintf(w, " (%s, %d%%)", cur.Operation, cur.Progress)
		}
		fmt.Fprintln(w)
		if cur.Error != "" {
			fmt.Fprintf(w, "Error:     %s\n", cur.Error)
		}
		fmt.Fprintf(w, "Last sync: %s\n", resp.SinceLastSync)
		fmt.Fprintf(w, "Pending:   %d\n", resp.Pending)
		for _, m := range resp.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", m.Level, m.Text)
		}
	})
}

func fetchStatus(ctx context.Context, addr string) (statusapi.StatusResponse, error) {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/status", nil)
	if err != nil {
		return statusapi.StatusResponse{}, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return statusapi.StatusResponse{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return statusapi.StatusResponse{}, fmt.Errorf("status API returned %s", res.Status)
	}
	var body statusapi.StatusResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return statusapi.StatusResponse{}, fmt.Errorf("decode status: %w", err)
	}
	return body, nil
}
