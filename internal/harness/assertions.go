package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, result *Result) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.assert(ctx, a, result); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) assert(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertPending:
		return h.assertPending(ctx, a)
	case AssertState:
		return h.assertState(ctx, a)
	case AssertSeqs:
		return h.assertSeqs(ctx, a)
	case AssertRemote:
		return assertRemote(a, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertPending(ctx context.Context, a Assertion) error {
	n, err := h.engine.PendingCount(ctx)
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending", a.Count),
			Actual:   fmt.Sprintf("%d pending", n),
		}
	}
	return nil
}

// lookup returns the record behind a ref, or ok=false once it is gone.
func (h *Harness) lookup(ctx context.Context, name string) (store.Record, bool, error) {
	r, known := h.refs[name]
	if !known {
		return store.Record{}, false, fmt.Errorf("unknown ref %q", name)
	}
	rec, err := h.store.Get(ctx, r.collection, r.localID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (h *Harness) assertState(ctx context.Context, a Assertion) error {
	rec, ok, err := h.lookup(ctx, a.Ref)
	if err != nil {
		return err
	}
	got := stateAbsent
	if ok {
		got = string(rec.State)
	}
	if got != a.State {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s is %s", a.Ref, a.State),
			Actual:   got,
		}
	}
	return nil
}

func (h *Harness) assertSeqs(ctx context.Context, a Assertion) error {
	names := make([]string, 0, len(a.Seqs))
	for name := range a.Seqs {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []string
	for _, name := range names {
		if r, known := h.refs[name]; known && r.collection != ledger.Collection(a.Collection) {
			return fmt.Errorf("ref %q belongs to %s, not %s", name, r.collection, a.Collection)
		}
		rec, ok, err := h.lookup(ctx, name)
		if err != nil {
			return err
		}
		var got int64
		if ok {
			got = rec.Seq
		}
		if got != a.Seqs[name] {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, got, a.Seqs[name]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertSeqs,
			Expected: "listed seqs",
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func assertRemote(a Assertion, result *Result) error {
	got := result.Remote[a.Collection]
	want := a.Rows
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertRemote,
			Expected: fmt.Sprintf("%s rows %v", a.Collection, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}
