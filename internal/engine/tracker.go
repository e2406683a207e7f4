package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// Tracker is the single writer of lifecycle state and versions.
//
// Every mutation is durable in the store before the call returns. Writes
// are serialised by mu, so a tracker mutation and a reconciler state change
// never interleave.
//
// Thread-safety: Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	store    *store.Store
	versions *VersionClock
	ids      IDGenerator
	logger   *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithIDGenerator sets the local id generator (default UUIDv7Generator).
func WithIDGenerator(g IDGenerator) TrackerOption {
	return func(t *Tracker) { t.ids = g }
}

// WithTimeSource sets the time source versions are derived from.
func WithTimeSource(ts TimeSource) TrackerOption {
	return func(t *Tracker) { t.versions = NewVersionClock(ts) }
}

// WithTrackerLogger sets the logger (default slog.Default()).
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a Tracker writing to s.
func NewTracker(s *store.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    s,
		versions: NewVersionClock(SystemTime{}),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create inserts payload as a new PendingCreate record at the end of c.
func (t *Tracker) Create(ctx context.Context, c ledger.Collection, payload ledger.Indexed) (store.Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode %s payload: %w", c, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.store.InsertNext(ctx, store.Record{
		Collection: c,
		LocalID:    t.ids.Generate(),
		State:      store.PendingCreate,
		Version:    t.versions.Next(),
		Key:        payload.IndexKey(),
		Date:       payload.IndexDate(),
		Payload:    data,
	})
	if err != nil {
		return store.Record{}, fmt.Errorf("create %s: %w", c, err)
	}

	t.logger.Debug("record created", "collection", c, "local_id", r.LocalID, "seq", r.Seq)
	return r, nil
}

// Update replaces the payload of an existing record. A PendingCreate record
// stays PendingCreate; any other record becomes PendingUpdate. Records
// already marked deleted are treated as absent.
func (t *Tracker) Update(ctx context.Context, c ledger.Collection, localID string, payload ledger.Indexed) (store.Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode %s payload: %w", c, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.live(ctx, c, localID)
	if err != nil {
		return store.Record{}, err
	}

	if r.State != store.PendingCreate {
		r.State = store.PendingUpdate
	}
	r.Version = t.bump(r.Version)
	r.Key = payload.IndexKey()
	r.Date = payload.IndexDate()
	r.Payload = data

	if err := t.store.Update(ctx, r); err != nil {
		return store.Record{}, fmt.Errorf("update %s/%s: %w", c, localID, err)
	}

	t.logger.Debug("record updated", "collection", c, "local_id", localID, "state", r.State, "version", r.Version)
	return r, nil
}

// MarkDeleted flags a record for deletion. The row stays in the store until
// the reconciler confirms the remote delete; its seq is freed then.
// Marking an already-deleted record again is a no-op.
func (t *Tracker) MarkDeleted(ctx context.Context, c ledger.Collection, localID string) (store.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.store.Get(ctx, c, localID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, NewNotFoundError(c, localID, err)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("delete %s/%s: %w", c, localID, err)
	}
	if r.State == store.PendingDelete {
		return r, nil
	}

	r.State = store.PendingDelete
	r.Version = t.bump(r.Version)
	if err := t.store.Update(ctx, r); err != nil {
		return store.Record{}, fmt.Errorf("delete %s/%s: %w", c, localID, err)
	}

	t.logger.Debug("record marked deleted", "collection", c, "local_id", localID, "seq", r.Seq)
	return r, nil
}

// Get returns a record regardless of its state.
func (t *Tracker) Get(ctx context.Context, c ledger.Collection, localID string) (store.Record, error) {
	r, err := t.store.Get(ctx, c, localID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, NewNotFoundError(c, localID, err)
	}
	return r, err
}

// Pending returns the records of c awaiting commit, ordered by seq.
func (t *Tracker) Pending(ctx context.Context, c ledger.Collection) ([]store.Record, error) {
	return t.store.Pending(ctx, c)
}

// PendingCount returns the number of records awaiting commit across all
// syncable collections.
func (t *Tracker) PendingCount(ctx context.Context) (int, error) {
	return t.store.PendingCount(ctx)
}

// AddNext creates the follow-on trip of the same shift: same key, date,
// service, region, number, place, type and start address, picked up when
// the previous trip was dropped off.
func (t *Tracker) AddNext(ctx context.Context, tripID string) (store.Record, error) {
	prev, err := t.Get(ctx, ledger.Trips, tripID)
	if err != nil {
		return store.Record{}, err
	}

	var trip ledger.Trip
	if err := prev.Decode(&trip); err != nil {
		return store.Record{}, err
	}

	return t.Create(ctx, ledger.Trips, ledger.Trip{
		Key:          trip.Key,
		Date:         trip.Date,
		Service:      trip.Service,
		Number:       trip.Number,
		Region:       trip.Region,
		Place:        trip.Place,
		Type:         trip.Type,
		StartAddress: trip.StartAddress,
		PickupTime:   trip.DropoffTime,
	})
}

// Clone copies a record's payload into a new PendingCreate record at the
// end of c.
func (t *Tracker) Clone(ctx context.Context, c ledger.Collection, localID string) (store.Record, error) {
	src, err := t.Get(ctx, c, localID)
	if err != nil {
		return store.Record{}, err
	}
	return t.Create(ctx, c, rawPayload{key: src.Key, date: src.Date, data: src.Payload})
}

// live returns a record that has not been marked deleted. Caller holds mu.
func (t *Tracker) live(ctx context.Context, c ledger.Collection, localID string) (store.Record, error) {
	r, err := t.store.Get(ctx, c, localID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, NewNotFoundError(c, localID, err)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get %s/%s: %w", c, localID, err)
	}
	if r.State == store.PendingDelete {
		return store.Record{}, NewNotFoundError(c, localID, errors.New("record is marked deleted"))
	}
	return r, nil
}

// bump returns the next version for a record whose current version is prev.
func (t *Tracker) bump(prev int64) int64 {
	v := t.versions.Next()
	if v <= prev {
		v = prev + 1
	}
	return v
}

// confirm clears pending state if the stored version still equals version.
func (t *Tracker) confirm(ctx context.Context, c ledger.Collection, localID string, version int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.ClearState(ctx, c, localID, version)
}

// purge removes a committed delete. Records that are no longer marked
// deleted are left alone.
func (t *Tracker) purge(ctx context.Context, c ledger.Collection, localID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.store.Get(ctx, c, localID)
	if err != nil {
		return false, err
	}
	if r.State != store.PendingDelete {
		return false, nil
	}
	if err := t.store.Delete(ctx, c, localID); err != nil {
		return false, err
	}
	return true, nil
}

// locked runs fn while holding the writer lock.
func (t *Tracker) locked(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn()
}

// rawPayload adapts an already-encoded payload to ledger.Indexed.
type rawPayload struct {
	key, date string
	data      json.RawMessage
}

func (p rawPayload) IndexKey() string  { return p.key }
func (p rawPayload) IndexDate() string { return p.date }

func (p rawPayload) MarshalJSON() ([]byte, error) { return p.data, nil }
