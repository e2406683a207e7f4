package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/engine"
	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// RecordView is the CLI form of a local record.
type RecordView struct {
	Collection ledger.Collection    `json:"collection"`
	LocalID    string               `json:"local_id"`
	Seq        int64                `json:"seq"`
	State      store.LifecycleState `json:"state"`
	Key        string               `json:"key,omitempty"`
	Date       string               `json:"date,omitempty"`
	Payload    json.RawMessage      `json:"payload"`
}

func viewOf(r store.Record) RecordView {
	return RecordView{
		Collection: r.Collection,
		LocalID:    r.LocalID,
		Seq:        r.Seq,
		State:      r.State,
		Key:        r.Key,
		Date:       r.Date,
		Payload:    r.Payload,
	}
}

// NewRecordCommand creates the record command and its subcommands.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create, edit and delete local records",
		Long: `Edit trips, shifts and expenses. Changes are stored locally as pending
and reach the remote sheet on the next sync.

Payloads are JSON objects, given as an argument or on stdin ("-").

Examples:
  gigledger record add expenses '{"date":"2026-10-14","name":"gas","amount":"40"}'
  gigledger record update trips 0192f... - < trip.json
  gigledger record next 0192f...
  gigledger record delete expenses 0192f...`,
	}

	cmd.AddCommand(newRecordAddCommand(rootOpts))
	cmd.AddCommand(newRecordUpdateCommand(rootOpts))
	cmd.AddCommand(newRecordDeleteCommand(rootOpts))
	cmd.AddCommand(newRecordNextCommand(rootOpts))
	cmd.AddCommand(newRecordCloneCommand(rootOpts))
	cmd.AddCommand(newRecordListCommand(rootOpts))
	return cmd
}

func newRecordAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <collection> [payload|-]",
		Short: "Create a record at the end of a collection",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseSyncable(args[0])
			if err != nil {
				return err
			}
			payload, err := readPayload(cmd, c, args[1:])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				rec, err := a.engine.Tracker().Create(cmd.Context(), c, payload)
				if err != nil {
					return WrapExitError(ExitFailure, "create failed", err)
				}
				return emitRecord(a, "Created", rec)
			})
		},
	}
}

func newRecordUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> <local-id> [payload|-]",
		Short: "Replace a record's payload",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseSyncable(args[0])
			if err != nil {
				return err
			}
			payload, err := readPayload(cmd, c, args[2:])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				rec, err := a.engine.Tracker().Update(cmd.Context(), c, args[1], payload)
				if err != nil {
					return mutationError("update", err)
				}
				return emitRecord(a, "Updated", rec)
			})
		},
	}
}

func newRecordDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <local-id>",
		Short: "Mark a record deleted; the row is removed on the next sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseSyncable(args[0])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				rec, err := a.engine.Tracker().MarkDeleted(cmd.Context(), c, args[1])
				if err != nil {
					return mutationError("delete", err)
				}
				return emitRecord(a, "Deleted", rec)
			})
		},
	}
}

func newRecordNextCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <trip-id>",
		Short: "Create the follow-on trip of the same shift",
		Long:  "Create a trip in the same shift whose pickup time is the given trip's dropoff time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				rec, err := a.engine.Tracker().AddNext(cmd.Context(), args[0])
				if err != nil {
					return mutationError("next", err)
				}
				return emitRecord(a, "Created", rec)
			})
		},
	}
}

func newRecordCloneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <collection> <local-id>",
		Short: "Copy a record to the end of its collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseSyncable(args[0])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				rec, err := a.engine.Tracker().Clone(cmd.Context(), c, args[1])
				if err != nil {
					return mutationError("clone", err)
				}
				return emitRecord(a, "Created", rec)
			})
		},
	}
}

func newRecordListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "List a collection in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseSyncable(args[0])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				recs, err := a.store.List(cmd.Context(), c)
				if err != nil {
					return WrapExitError(ExitCommandError, "list failed", err)
				}
				views := make([]RecordView, len(recs))
				for i, r := range recs {
					views[i] = viewOf(r)
				}
				return a.out.Emit(views, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "SEQ\tSTATE\tLOCAL ID\tKEY\tDATE")
					for _, v := range views {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.Seq, v.State, v.LocalID, v.Key, v.Date)
					}
					tw.Flush()
				})
			})
		},
	}
}

// withApp opens an offline app, runs fn and closes it.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(opts, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseSyncable(name string) (ledger.Collection, error) {
	c, err := ledger.ParseCollection(name)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid collection", err)
	}
	if c.Kind() != ledger.KindSyncable {
		return "", NewExitError(ExitCommandError,
			fmt.Sprintf("%s is derived and cannot be edited; use one of %v", c, ledger.SyncableCollections))
	}
	return c, nil
}

// readPayload decodes the payload argument, or stdin when it is absent or
// "-". Trip totals are recomputed from pay, tip and bonus.
func readPayload(cmd *cobra.Command, c ledger.Collection, args []string) (ledger.Indexed, error) {
	var data []byte
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read payload", err)
		}
		data = b
	} else {
		data = []byte(args[0])
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, NewExitError(ExitCommandError, "payload is required")
	}

	payload, err := ledger.DecodeIndexed(c, data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid payload", err)
	}
	if t, ok := payload.(ledger.Trip); ok {
		payload = t.WithTotal()
	}
	return payload, nil
}

func mutationError(op string, err error) error {
	if engine.IsNotFound(err) {
		return WrapExitError(ExitCommandError, "no such record", err)
	}
	return WrapExitError(ExitFailure, op+" failed", err)
}

func emitRecord(a *app, verb string, rec store.Record) error {
	v := viewOf(rec)
	return a.out.Emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s %s (seq %d, %s)\n", verb, v.Collection, v.LocalID, v.Seq, v.State)
	})
}
