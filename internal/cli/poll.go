package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/statusapi"
)

// PollOptions holds flags for the poll command.
type PollOptions struct {
	*RootOptions
	Interval   time.Duration
	StatusAddr string
}

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Commit pending records periodically",
		Long: `Run the auto-save loop: a commit cycle every interval, never two at once.
Ticks missed while the machine slept are not replayed.

With a status address, the status API is served alongside:
  GET  /status, GET /pending, POST /sync, GET /status/stream (WebSocket)

Pending records are committed once more on shutdown.

Example:
  gigledger poll --interval 30s --status-addr 127.0.0.1:8082`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between commit cycles (overrides poll.interval)")
	cmd.Flags().StringVar(&opts.StatusAddr, "status-addr", "", "serve the status API on this address (overrides status.addr)")

	return cmd
}

func runPoll(opts *PollOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.Poll.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}
	addr := a.cfg.Status.Addr
	if opts.StatusAddr != "" {
		addr = opts.StatusAddr
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	if addr != "" {
		go func() {
			serveErr <- statusapi.Serve(ctx, addr, statusapi.NewRouter(a.engine, a.logger), a.logger)
		}()
	}

	a.engine.Start(ctx, interval)
	a.logger.Info("polling started", "interval", interval, "remote", a.cfg.Remote.URL)
	fmt.Fprintf(cmd.OutOrStdout(), "Polling every %s. Press Ctrl-C to stop.\n", interval)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = WrapExitError(ExitCommandError, "status API failed", err)
		}
		cancel()
	}
	a.engine.Stop()

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(parentCtx), a.cfg.Remote.Timeout)
	defer flushCancel()
	if n, err := a.engine.PendingCount(flushCtx); err == nil && n > 0 {
		a.logger.Info("committing before exit", "pending", n)
		if _, err := a.engine.SyncNow(flushCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Error("final commit failed", "error", err)
		}
	}

	a.logger.Info("polling stopped")
	return runErr
}
