package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/gigledger/internal/engine"
	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/store"
	"github.com/roach88/gigledger/internal/testutil"
)

// ScenarioStart is the fake clock's time when a scenario begins.
var ScenarioStart = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

// ErrRemoteUnavailable is what a failed sheet returns.
var ErrRemoteUnavailable = errors.New("remote unavailable")

type ref struct {
	collection ledger.Collection
	localID    string
}

// Harness drives one engine through a scenario.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	sheet  *remote.Sheet
	clock  *testutil.FakeClock
	refs   map[string]ref
	logger *slog.Logger
}

// Run executes a scenario against a fresh engine and evaluates its
// assertions. An error is returned only when the engine cannot be set up;
// step and assertion failures are reported in the Result.
func Run(s *Scenario) (*Result, error) {
	return RunWithLogger(s, slog.New(slog.DiscardHandler))
}

// RunWithLogger is Run with engine logs sent to logger.
func RunWithLogger(s *Scenario, logger *slog.Logger) (*Result, error) {
	dir, err := os.MkdirTemp("", "gigledger-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		sheet:  remote.NewSheet(),
		clock:  testutil.NewFakeClock(ScenarioStart),
		refs:   make(map[string]ref),
		logger: logger,
	}
	h.engine = engine.New(st, h.sheet,
		engine.WithLogger(logger),
		engine.WithTime(h.clock),
		engine.WithIDs(testutil.NewSequentialIDs("rec")),
		engine.WithStatusResets(0, 0),
	)

	ctx := context.Background()
	result := NewResult()

	for i, step := range s.Steps {
		ev, err := h.execute(ctx, i+1, step)
		if err != nil {
			ev.Error = err.Error()
		}
		result.Trace = append(result.Trace, ev)

		switch {
		case err != nil && !step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Op, err))
		case err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): expected an error", i+1, step.Op))
		}
		if ev.Report != nil && step.Expect != nil {
			for _, msg := range checkReport(*ev.Report, *step.Expect) {
				result.AddError(fmt.Sprintf("step %d (commit): %s", i+1, msg))
			}
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot final state: %w", err)
	}
	for _, msg := range h.evaluate(ctx, s.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, n int, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: n, Op: step.Op, Collection: step.Collection, Ref: step.Ref}
	c := ledger.Collection(step.Collection)

	switch step.Op {
	case OpCreate:
		ev.Ref = step.As
		payload, err := decodePayload(c, step.Payload)
		if err != nil {
			return ev, err
		}
		rec, err := h.engine.Tracker().Create(ctx, c, payload)
		if err != nil {
			return ev, err
		}
		h.refs[step.As] = ref{collection: c, localID: rec.LocalID}

	case OpUpdate:
		r := h.refs[step.Ref]
		ev.Collection = string(r.collection)
		payload, err := decodePayload(r.collection, step.Payload)
		if err != nil {
			return ev, err
		}
		if _, err := h.engine.Tracker().Update(ctx, r.collection, r.localID, payload); err != nil {
			return ev, err
		}

	case OpDelete:
		r := h.refs[step.Ref]
		ev.Collection = string(r.collection)
		if _, err := h.engine.Tracker().MarkDeleted(ctx, r.collection, r.localID); err != nil {
			return ev, err
		}

	case OpCommit:
		report, err := h.engine.SyncNow(ctx)
		ev.Report = &report
		return ev, err

	case OpFail:
		h.sheet.Fail(c, ErrRemoteUnavailable)

	case OpRecover:
		h.sheet.Recover(c)

	case OpSeed:
		rows := make([]json.RawMessage, len(step.Rows))
		for i, row := range step.Rows {
			raw, err := json.Marshal(row)
			if err != nil {
				return ev, fmt.Errorf("encode seed row %d: %w", i+1, err)
			}
			rows[i] = raw
		}
		h.sheet.Seed(c, rows...)

	case OpLoad:
		_, err := h.engine.Load(ctx)
		return ev, err

	case OpRecompute:
		_, err := h.engine.Recompute(ctx)
		return ev, err

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return ev, err
		}
		h.clock.Advance(d)

	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	return ev, nil
}

func decodePayload(c ledger.Collection, fields map[string]any) (ledger.Indexed, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return ledger.DecodeIndexed(c, raw)
}

func checkReport(got engine.CommitReport, want ExpectClause) []string {
	var msgs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			msgs = append(msgs, fmt.Sprintf("%s: expected %d, got %d", name, *want, got))
		}
	}
	check("pushed", want.Pushed, got.Pushed)
	check("deleted", want.Deleted, got.Deleted)
	check("stale", want.Stale, got.Stale)
	check("failed", want.Failed, got.Failed)
	check("compacted", want.Compacted, got.Compacted)
	return msgs
}

// label names a local id by its scenario ref, or by the id itself for
// records the scenario did not create.
func (h *Harness) label(localID string) string {
	for name, r := range h.refs {
		if r.localID == localID {
			return name
		}
	}
	return localID
}

// snapshot fills result.Local and result.Remote for every syncable
// collection that has rows on either side.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	for _, c := range ledger.SyncableCollections {
		records, err := h.store.List(ctx, c)
		if err != nil {
			return err
		}
		rows := h.sheet.Rows(c)
		if len(records) == 0 && len(rows) == 0 {
			continue
		}

		local := make([]LocalRow, len(records))
		for i, r := range records {
			local[i] = LocalRow{Seq: r.Seq, Ref: h.label(r.LocalID), State: string(r.State)}
		}
		result.Local[string(c)] = local

		labels := make([]string, len(rows))
		for i, row := range rows {
			labels[i] = h.rowLabel(records, int64(i+1), row)
		}
		result.Remote[string(c)] = labels
	}
	return nil
}

// rowLabel names a sheet row by the local record holding the same payload,
// preferring the record at the same position. Rows no record matches are
// shown as compact JSON.
func (h *Harness) rowLabel(records []store.Record, row int64, raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return BlankRow
	}

	match := ""
	for _, r := range records {
		if !bytes.Equal(bytes.TrimSpace(r.Payload), trimmed) {
			continue
		}
		if r.Seq == row {
			return h.label(r.LocalID)
		}
		if match == "" {
			match = h.label(r.LocalID)
		}
	}
	if match != "" {
		return match
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
