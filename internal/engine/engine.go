package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/gigledger/internal/aggregate"
	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/rollup"
	"github.com/roach88/gigledger/internal/store"
)

// ErrBusy is returned when an operation needs the sync slot while a commit
// cycle or load holds it.
var ErrBusy = errors.New("a sync is already in progress")

// Engine wires the tracker, reconciler, scheduler, loader and shift
// calculator over one store and one remote.
//
// Before each commit cycle the shifts of pending trips are recomputed so
// their totals reach the remote store in the same cycle. After each cycle
// the trips confirmed for the first time are merged into the aggregates
// exactly once, and the rollups are rebuilt if anything changed.
//
// Thread-safety: Engine is safe for concurrent use.
type Engine struct {
	store      *store.Store
	tracker    *Tracker
	reconciler *Reconciler
	scheduler  *PollScheduler
	loader     *Loader
	calc       *rollup.Calculator
	status     *StatusTracker
	logger     *slog.Logger
}

type options struct {
	logger       *slog.Logger
	time         TimeSource
	ids          IDGenerator
	tickers      TickerFactory
	successReset time.Duration
	errorReset   time.Duration
	failureLimit int
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger shared by every component (default
// slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTime sets the time source for versions, status timestamps, polling
// and the current week.
func WithTime(ts TimeSource) Option {
	return func(o *options) { o.time = ts }
}

// WithIDs sets the local id generator.
func WithIDs(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithTickers sets how the scheduler creates tickers.
func WithTickers(f TickerFactory) Option {
	return func(o *options) { o.tickers = f }
}

// WithStatusResets sets how long success and error states are held.
func WithStatusResets(success, failure time.Duration) Option {
	return func(o *options) {
		o.successReset = success
		o.errorReset = failure
	}
}

// WithFailureLimit sets how many consecutive commit cycles may leave records
// pending before the status reports an error.
func WithFailureLimit(n int) Option {
	return func(o *options) { o.failureLimit = n }
}

// New creates an Engine. The scheduler starts stopped.
func New(s *store.Store, rem remote.Remote, opts ...Option) *Engine {
	o := options{
		logger:       slog.Default(),
		time:         SystemTime{},
		ids:          UUIDv7Generator{},
		tickers:      NewSystemTicker,
		successReset: DefaultSuccessReset,
		errorReset:   DefaultErrorReset,
		failureLimit: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{store: s, logger: o.logger}
	e.status = NewStatusTracker(
		WithResetDelays(o.successReset, o.errorReset),
		WithStatusTimeSource(o.time),
		WithStatusLogger(o.logger),
	)
	e.tracker = NewTracker(s,
		WithIDGenerator(o.ids),
		WithTimeSource(o.time),
		WithTrackerLogger(o.logger),
	)
	e.reconciler = NewReconciler(e.tracker, rem,
		WithStatus(e.status),
		WithReconcilerLogger(o.logger),
		WithAfterCommit(e.afterCommit),
		WithFailureThreshold(o.failureLimit),
	)
	e.loader = NewLoader(e.tracker, rem,
		WithLoaderStatus(e.status),
		WithLoaderLogger(o.logger),
	)
	e.calc = rollup.NewCalculator(s, e.tracker,
		rollup.WithNow(o.time.Now),
		rollup.WithLogger(o.logger),
	)
	e.scheduler = NewPollScheduler(e,
		WithSchedulerTime(o.time),
		WithTickerFactory(o.tickers),
		WithSchedulerLogger(o.logger),
	)
	return e
}

// Tracker returns the mutation tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Status returns the sync status tracker.
func (e *Engine) Status() *StatusTracker { return e.status }

// Scheduler returns the poll scheduler.
func (e *Engine) Scheduler() *PollScheduler { return e.scheduler }

// Commit recomputes the shifts of pending trips and runs one commit cycle.
// It implements Committer for the scheduler; callers use SyncNow.
func (e *Engine) Commit(ctx context.Context, op SyncOperation) (CommitReport, error) {
	if err := e.prepare(ctx); err != nil {
		e.logger.Warn("shift recompute before commit failed", "error", err)
	}
	return e.reconciler.Commit(ctx, op)
}

// prepare recomputes every shift that has a pending trip.
func (e *Engine) prepare(ctx context.Context) error {
	pending, err := e.store.Pending(ctx, ledger.Trips)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var keys []string
	for _, r := range pending {
		if r.Key != "" && !seen[r.Key] {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	n, err := e.calc.RecomputeKeys(ctx, keys...)
	if n > 0 {
		e.logger.Debug("shifts recomputed", "shifts", n)
	}
	return err
}

func (e *Engine) afterCommit(ctx context.Context, report CommitReport) {
	var trips []ledger.Trip
	for _, r := range report.Created {
		if r.Collection != ledger.Trips {
			continue
		}
		var t ledger.Trip
		if err := r.Decode(&t); err != nil {
			e.logger.Warn("created trip not merged", "local_id", r.LocalID, "error", err)
			continue
		}
		trips = append(trips, t)
	}

	if len(trips) > 0 {
		n, err := e.loader.Absorb(ctx, trips)
		if err != nil {
			e.logger.Error("merging committed trips failed", "trips", len(trips), "error", err)
		} else {
			e.logger.Debug("committed trips merged", "trips", len(trips), "entities", n)
		}
	}

	if report.Changed() {
		if err := e.calc.RefreshRollups(ctx); err != nil {
			e.logger.Error("rollup refresh failed", "error", err)
		}
	}
}

// SyncNow runs a commit cycle immediately. ErrBusy is returned when a
// cycle is already in flight.
func (e *Engine) SyncNow(ctx context.Context) (CommitReport, error) {
	report, ran, err := e.scheduler.TriggerNow(ctx)
	if !ran && err == nil {
		return report, ErrBusy
	}
	return report, err
}

// Start begins periodic commits.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	e.scheduler.Start(ctx, interval)
}

// Stop ends periodic commits and waits for an in-flight cycle.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Load replaces local data with the remote store's. It shares the
// scheduler's single-flight slot, so it never overlaps a commit cycle.
func (e *Engine) Load(ctx context.Context) (LoadReport, error) {
	var (
		report LoadReport
		err    error
	)
	if !e.scheduler.Exclusive(func() { report, err = e.loader.Load(ctx) }) {
		return LoadReport{}, ErrBusy
	}
	return report, err
}

// Append merges the remote address and name sheets into the local
// aggregates.
func (e *Engine) Append(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	if !e.scheduler.Exclusive(func() { n, err = e.loader.Append(ctx) }) {
		return 0, ErrBusy
	}
	return n, err
}

// Recompute recomputes every shift and rebuilds the rollups. Returns the
// number of shifts whose totals changed.
func (e *Engine) Recompute(ctx context.Context) (int, error) {
	n, err := e.calc.RecomputeAll(ctx)
	if err != nil {
		return n, fmt.Errorf("recompute shifts: %w", err)
	}
	if err := e.calc.RefreshRollups(ctx); err != nil {
		return n, fmt.Errorf("refresh rollups: %w", err)
	}
	return n, nil
}

// Deliveries groups the live trips by {address, name}.
func (e *Engine) Deliveries(ctx context.Context) ([]aggregate.Delivery, error) {
	trips, err := e.loader.liveTrips(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.Deliveries(trips), nil
}

// PendingCount returns the number of records awaiting commit.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.tracker.PendingCount(ctx)
}

// LastSync returns the time of the last successful sync.
func (e *Engine) LastSync() time.Time { return e.status.LastSync() }

// IsSyncing reports whether a sync is in progress.
func (e *Engine) IsSyncing() bool { return e.status.IsSyncing() }

// Subscribe streams status transitions; see StatusTracker.Subscribe.
func (e *Engine) Subscribe() (<-chan StatusEvent, func()) { return e.status.Subscribe() }
