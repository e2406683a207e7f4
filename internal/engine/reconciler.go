package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/store"
)

// CommitReport summarises one commit cycle.
type CommitReport struct {
	Pushed    int `json:"pushed"`
	Deleted   int `json:"deleted"`
	Stale     int `json:"stale"`
	Failed    int `json:"failed"`
	Compacted int `json:"compacted"`

	// Created holds the records whose first push was confirmed.
	Created []store.Record `json:"-"`

	// Errors holds the per-record failures, in the order they happened.
	Errors []error `json:"-"`
}

// Changed reports whether the cycle changed anything locally.
func (r CommitReport) Changed() bool {
	return r.Pushed+r.Deleted+r.Compacted > 0
}

func (r *CommitReport) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err)
}

// Committer runs commit cycles. Implemented by Reconciler.
type Committer interface {
	Commit(ctx context.Context, op SyncOperation) (CommitReport, error)
}

// Reconciler commits pending local mutations to the remote store.
//
// Thread-safety: a Reconciler must run one cycle at a time; PollScheduler
// provides that guarantee. Local edits through the Tracker may run
// concurrently with a cycle.
type Reconciler struct {
	tracker     *Tracker
	store       *store.Store
	remote      remote.Remote
	status      *StatusTracker
	logger      *slog.Logger
	collections []ledger.Collection
	afterCommit func(ctx context.Context, report CommitReport)

	// failures counts consecutive cycles that left records pending.
	failures         int
	failureThreshold int
}

// DefaultFailureThreshold is the number of consecutive failing cycles
// before the status reports an error.
const DefaultFailureThreshold = 3

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithStatus publishes cycle transitions to st.
func WithStatus(st *StatusTracker) ReconcilerOption {
	return func(r *Reconciler) { r.status = st }
}

// WithReconcilerLogger sets the logger (default slog.Default()).
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// WithFailureThreshold sets how many consecutive cycles may leave records
// pending before the status turns to error. Values below 1 are treated as 1.
func WithFailureThreshold(n int) ReconcilerOption {
	return func(r *Reconciler) { r.failureThreshold = max(n, 1) }
}

// WithAfterCommit runs fn after every cycle that did not fail outright.
func WithAfterCommit(fn func(ctx context.Context, report CommitReport)) ReconcilerOption {
	return func(r *Reconciler) { r.afterCommit = fn }
}

// NewReconciler creates a reconciler committing the tracker's records to rem.
func NewReconciler(t *Tracker, rem remote.Remote, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		tracker:     t,
		store:       t.store,
		remote:      rem,
		logger:      slog.Default(),
		collections: ledger.SyncableCollections,

		failureThreshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CommitPending runs one user-initiated commit cycle.
func (r *Reconciler) CommitPending(ctx context.Context) (CommitReport, error) {
	return r.Commit(ctx, OpSave)
}

// Commit runs one commit cycle over every syncable collection.
//
// Per-record failures are logged, counted in the report and leave the
// record pending; they never abort the cycle. An error is returned only
// when the local store cannot be read.
func (r *Reconciler) Commit(ctx context.Context, op SyncOperation) (CommitReport, error) {
	var report CommitReport

	total, err := r.store.PendingCount(ctx)
	if err != nil {
		return report, fmt.Errorf("count pending: %w", err)
	}
	if total > 0 {
		r.logger.Info("commit starting", "operation", op, "pending", total)
		if r.status != nil {
			r.status.Begin(op, total)
		}
	}

	done := 0
	for _, c := range r.collections {
		if err := r.commitCollection(ctx, c, &report, &done); err != nil {
			if r.status != nil && total > 0 {
				r.status.Fail(err.Error())
			}
			return report, err
		}
	}

	for _, err := range report.Errors {
		r.logger.Warn("record left pending", "error", err)
	}

	if total > 0 {
		r.logger.Info("commit finished",
			"pushed", report.Pushed,
			"deleted", report.Deleted,
			"stale", report.Stale,
			"failed", report.Failed,
			"compacted", report.Compacted)

		r.finish(report, total)
	}

	if r.afterCommit != nil {
		r.afterCommit(ctx, report)
	}
	return report, nil
}

// finish ends a cycle that had pending records. Records left pending are
// retried by the next cycle, so the status reports an error only once
// failureThreshold cycles in a row have failed.
func (r *Reconciler) finish(report CommitReport, total int) {
	if report.Failed == 0 {
		r.failures = 0
		if r.status != nil {
			r.status.Succeed("")
		}
		return
	}

	r.failures++
	msg := fmt.Sprintf("%d of %d records could not be committed", report.Failed, total)
	if r.failures < r.failureThreshold {
		r.logger.Warn("commit will be retried",
			"failed", report.Failed,
			"consecutive_failures", r.failures,
			"threshold", r.failureThreshold)
		if r.status != nil {
			r.status.Retry(msg)
		}
		return
	}

	r.logger.Error("commit keeps failing",
		"failed", report.Failed,
		"consecutive_failures", r.failures)
	if r.status != nil {
		r.status.Fail(msg)
	}
}

// ConsecutiveFailures returns how many cycles in a row left records
// pending. Call it between cycles.
func (r *Reconciler) ConsecutiveFailures() int { return r.failures }

// commitCollection commits the pending records of c in ascending seq.
//
// A successful remote delete shifts every later remote row up by one, so
// the row of a record is its seq minus the deletes already made in this
// pass.
func (r *Reconciler) commitCollection(ctx context.Context, c ledger.Collection, report *CommitReport, done *int) error {
	pending, err := r.store.Pending(ctx, c)
	if err != nil {
		return fmt.Errorf("read pending %s: %w", c, err)
	}

	var shifted, freed int64
	for _, rec := range pending {
		if ctx.Err() != nil {
			report.fail(NewRemoteError(c, rec.LocalID, "commit", ctx.Err()))
			break
		}

		row := rec.Seq - shifted
		if rec.State == store.PendingDelete {
			removed, ok := r.commitDelete(ctx, rec, row, report)
			if ok {
				shifted++
			}
			if removed && (freed == 0 || rec.Seq < freed) {
				freed = rec.Seq
			}
		} else {
			r.commitPush(ctx, rec, row, report)
		}

		*done++
		if r.status != nil {
			r.status.Progress(*done, "")
		}
	}

	// Compaction uses a fresh context so a cancelled cycle still closes the
	// gaps left by the deletes it already made.
	cctx := context.WithoutCancel(ctx)
	if freed > 0 {
		moved, err := r.CompactSequence(cctx, c, freed)
		report.Compacted += moved
		if err != nil {
			return err
		}
	}
	return r.repairGaps(cctx, c, report)
}

// commitDelete deletes rec's remote row and then the local record. ok is
// true when the remote row is gone (a missing row counts as deleted);
// removed is true when the local record was removed as well.
func (r *Reconciler) commitDelete(ctx context.Context, rec store.Record, row int64, report *CommitReport) (removed, ok bool) {
	c := rec.Collection

	err := r.remote.DeleteRecord(ctx, c, row)
	if errors.Is(err, remote.ErrRowNotFound) {
		r.logger.Debug("remote row already gone", "collection", c, "local_id", rec.LocalID, "row", row)
		err = nil
	}
	if err != nil {
		report.fail(NewRemoteError(c, rec.LocalID, "delete", err))
		return false, false
	}

	removed, err = r.tracker.purge(ctx, c, rec.LocalID)
	if err != nil {
		report.fail(fmt.Errorf("remove %s/%s after remote delete: %w", c, rec.LocalID, err))
		return false, true
	}
	if removed {
		report.Deleted++
	}
	return removed, true
}

// commitPush pushes rec's payload to its row and clears its pending state
// if nothing edited it while the push was in flight.
func (r *Reconciler) commitPush(ctx context.Context, rec store.Record, row int64, report *CommitReport) {
	c := rec.Collection
	versionAtSelection := rec.Version

	if err := r.remote.PushRecord(ctx, c, row, rec.Payload); err != nil {
		report.fail(NewRemoteError(c, rec.LocalID, "push", err))
		return
	}

	ok, err := r.tracker.confirm(ctx, c, rec.LocalID, versionAtSelection)
	if err != nil {
		report.fail(fmt.Errorf("confirm %s/%s: %w", c, rec.LocalID, err))
		return
	}
	if !ok {
		report.Stale++
		stored, _ := r.store.Get(ctx, c, rec.LocalID)
		r.logger.Debug("push superseded by a local edit",
			"error", NewStaleError(c, rec.LocalID, versionAtSelection, stored.Version))
		return
	}
	report.Pushed++
	if rec.State == store.PendingCreate {
		report.Created = append(report.Created, rec)
	}
}
