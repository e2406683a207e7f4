package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/statusapi"
)

// SheetServerOptions holds flags for the sheet-server command.
type SheetServerOptions struct {
	*RootOptions
	Addr string
	Seed string
}

// NewSheetServerCommand creates the sheet-server command.
func NewSheetServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SheetServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sheet-server",
		Short: "Serve an in-memory positional sheet for local development",
		Long: `Serve an in-memory remote sheet over HTTP. Rows are positional: a delete
shifts later rows up, a push past the end pads with blank rows.

The seed file is a JSON object of collection name to row array:
  {"expenses": [{"date": "2026-10-14", "name": "gas", "amount": "40"}, null]}

Example:
  gigledger sheet-server --addr 127.0.0.1:8081 --seed sheets.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSheetServer(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8081", "listen address")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "JSON file of initial rows")

	return cmd
}

func runSheetServer(opts *SheetServerOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	sheet := remote.NewSheet()
	if opts.Seed != "" {
		n, err := seedSheet(sheet, opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to seed sheet", err)
		}
		logger.Info("sheet seeded", "file", opts.Seed, "rows", n)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Sheet server listening on %s. Press Ctrl-C to stop.\n", opts.Addr)
	if err := statusapi.Serve(ctx, opts.Addr, remote.NewHandler(sheet, logger), logger); err != nil {
		return WrapExitError(ExitCommandError, "sheet server failed", err)
	}
	return nil
}

// seedSheet loads rows from a JSON file into sheet and returns the row
// count.
func seedSheet(sheet *remote.Sheet, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var seed map[string][]json.RawMessage
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	n := 0
	for name, rows := range seed {
		c, err := ledger.ParseCollection(name)
		if err != nil {
			return 0, err
		}
		sheet.Seed(c, rows...)
		n += len(rows)
	}
	return n, nil
}
