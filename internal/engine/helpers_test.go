package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/store"
	"github.com/roach88/gigledger/internal/testutil"
)

var testStart = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture is a tracker and reconciler over a fresh store and in-memory sheet.
type fixture struct {
	store   *store.Store
	clock   *testutil.FakeClock
	sheet   *remote.Sheet
	tracker *Tracker
	rec     *Reconciler
}

func newFixture(t *testing.T, opts ...ReconcilerOption) *fixture {
	t.Helper()
	f := &fixture{
		store: setupTestStore(t),
		clock: testutil.NewFakeClock(testStart),
		sheet: remote.NewSheet(),
	}
	f.tracker = NewTracker(f.store,
		WithIDGenerator(testutil.NewSequentialIDs("rec")),
		WithTimeSource(f.clock),
		WithTrackerLogger(discardLogger()),
	)
	opts = append([]ReconcilerOption{WithReconcilerLogger(discardLogger())}, opts...)
	f.rec = NewReconciler(f.tracker, f.sheet, opts...)
	return f
}

func expense(name string) ledger.Expense {
	return ledger.Expense{Date: "2026-10-14", Name: name, Category: "fuel", Amount: decimal.NewFromInt(10)}
}

// createExpenses creates one expense per name and returns their local ids.
func (f *fixture) createExpenses(t *testing.T, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, n := range names {
		r, err := f.tracker.Create(context.Background(), ledger.Expenses, expense(n))
		require.NoError(t, err)
		ids[i] = r.LocalID
	}
	return ids
}

func (f *fixture) commit(t *testing.T) CommitReport {
	t.Helper()
	report, err := f.rec.CommitPending(context.Background())
	require.NoError(t, err)
	return report
}

func (f *fixture) get(t *testing.T, c ledger.Collection, id string) store.Record {
	t.Helper()
	r, err := f.store.Get(context.Background(), c, id)
	require.NoError(t, err)
	return r
}

// localNames returns the expense names of the local store in seq order,
// keyed by seq.
func (f *fixture) localNames(t *testing.T) map[int64]string {
	t.Helper()
	records, err := f.store.List(context.Background(), ledger.Expenses)
	require.NoError(t, err)

	out := make(map[int64]string)
	for _, r := range records {
		var e ledger.Expense
		require.NoError(t, r.Decode(&e))
		out[r.Seq] = e.Name
	}
	return out
}

// rowNames returns the "name" field of every remote row; blank rows are "".
func rowNames(t *testing.T, sheet *remote.Sheet, c ledger.Collection) []string {
	t.Helper()
	names := []string{}
	for _, raw := range sheet.Rows(c) {
		if raw == nil {
			names = append(names, "")
			continue
		}
		var v struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		names = append(names, v.Name)
	}
	return names
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
