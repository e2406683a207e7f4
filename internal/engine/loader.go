package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/gigledger/internal/aggregate"
	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/store"
)

// LoadReport summarises a full load.
type LoadReport struct {
	// Records is the number of rows loaded per syncable collection.
	Records map[ledger.Collection]int `json:"records"`
	// Skipped lists syncable collections left untouched because they had
	// pending local changes.
	Skipped []ledger.Collection `json:"skipped,omitempty"`
	// Blank is the number of empty rows loaded as pending deletes, so the
	// next commit cycle removes them remotely.
	Blank    int `json:"blank"`
	Entities int `json:"entities"`
	Rollups  int `json:"rollups"`
}

// Loader replaces local data with the remote store's and folds remote and
// committed facts into the aggregate collections.
type Loader struct {
	tracker *Tracker
	store   *store.Store
	remote  remote.Remote
	status  *StatusTracker
	logger  *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderStatus publishes load transitions to st.
func WithLoaderStatus(st *StatusTracker) LoaderOption {
	return func(l *Loader) { l.status = st }
}

// WithLoaderLogger sets the logger (default slog.Default()).
func WithLoaderLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// NewLoader creates a loader writing through t.
func NewLoader(t *Tracker, rem remote.Remote, opts ...LoaderOption) *Loader {
	l := &Loader{
		tracker: t,
		store:   t.store,
		remote:  rem,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces every collection with the remote store's contents.
//
// A syncable collection with pending records is skipped so no local edit is
// lost. Loaded records are clean and keep the remote row number as seq.
// A blank row is loaded as a pending delete at its seq, so the next commit
// cycle removes it from the remote store and compacts the rows below it.
// Rows that do not decode stay clean in place. Aggregate
// entities are then linked to the loaded trips.
func (l *Loader) Load(ctx context.Context) (LoadReport, error) {
	report := LoadReport{Records: make(map[ledger.Collection]int)}
	total := len(ledger.SyncableCollections) + 1
	l.begin(total)

	for i, c := range ledger.SyncableCollections {
		n, blanks, skipped, err := l.loadCollection(ctx, c)
		if err != nil {
			l.fail(err)
			return report, err
		}
		if skipped {
			report.Skipped = append(report.Skipped, c)
			l.message(fmt.Sprintf("%s has unsaved changes; not reloaded", c), LevelWarning)
		} else {
			report.Records[c] = n
			report.Blank += blanks
		}
		l.progress(i + 1)
	}

	secondary := append(append([]ledger.Collection{}, ledger.AggregateCollections...), ledger.RollupCollections...)
	rows, err := l.remote.FetchSecondary(ctx, secondary)
	if err != nil {
		err = NewRemoteError("", "", "fetch secondary", err)
		l.fail(err)
		return report, err
	}

	trips, err := l.liveTrips(ctx)
	if err != nil {
		l.fail(err)
		return report, err
	}
	for _, c := range ledger.AggregateCollections {
		n, err := l.loadEntities(ctx, c, rows[c], trips)
		if err != nil {
			l.fail(err)
			return report, err
		}
		report.Entities += n
	}
	for _, c := range ledger.RollupCollections {
		n, err := l.loadRollups(ctx, c, rows[c])
		if err != nil {
			l.fail(err)
			return report, err
		}
		report.Rollups += n
	}
	l.progress(total)

	l.logger.Info("load finished",
		"records", report.Records,
		"skipped", report.Skipped,
		"entities", report.Entities,
		"rollups", report.Rollups)
	if l.status != nil {
		l.status.Succeed("")
	}
	return report, nil
}

func (l *Loader) loadCollection(ctx context.Context, c ledger.Collection) (n, blanks int, skipped bool, err error) {
	rows, err := l.remote.FetchAll(ctx, c)
	if err != nil {
		return 0, 0, false, NewRemoteError(c, "", "fetch", err)
	}

	err = l.tracker.locked(func() error {
		pending, err := l.store.Pending(ctx, c)
		if err != nil {
			return fmt.Errorf("read pending %s: %w", c, err)
		}
		if len(pending) > 0 {
			skipped = true
			return nil
		}

		records := make([]store.Record, 0, len(rows))
		for i, raw := range rows {
			rec := store.Record{
				Collection: c,
				LocalID:    l.tracker.ids.Generate(),
				Seq:        int64(i + 1),
				State:      store.Clean,
				Version:    l.tracker.versions.Next(),
				Payload:    raw,
			}
			if blank(raw) {
				rec.State = store.PendingDelete
				rec.Payload = json.RawMessage("null")
				blanks++
			} else if payload, err := ledger.DecodeIndexed(c, raw); err != nil {
				l.logger.Warn("keeping undecodable row in place", "collection", c, "row", i+1, "error", err)
			} else {
				rec.Key = payload.IndexKey()
				rec.Date = payload.IndexDate()
			}
			records = append(records, rec)
		}
		n = len(records) - blanks
		return l.store.ReplaceAll(ctx, c, records)
	})
	if skipped {
		l.logger.Warn("load skipped, local changes pending", "collection", c)
	}
	if blanks > 0 {
		l.logger.Info("blank rows queued for removal", "collection", c, "rows", blanks)
	}
	return n, blanks, skipped, err
}

func (l *Loader) loadEntities(ctx context.Context, c ledger.Collection, rows []json.RawMessage, trips []ledger.Trip) (int, error) {
	policy, err := aggregate.PolicyFor(c)
	if err != nil {
		return 0, err
	}

	entities := make([]aggregate.Entity, 0, len(rows))
	seen := make(map[string]bool)
	for _, raw := range rows {
		if blank(raw) {
			continue
		}
		var e aggregate.Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			l.logger.Warn("skipping undecodable entity", "collection", c, "error", err)
			continue
		}
		e.NaturalKey = policy.Key(e.Key)
		if e.NaturalKey == "" {
			continue
		}
		if seen[e.NaturalKey] {
			l.logger.Warn("skipping duplicate entity", "collection", c, "key", e.Key)
			continue
		}
		seen[e.NaturalKey] = true
		if e.LocalID == "" {
			e.LocalID = l.tracker.ids.Generate()
		}
		entities = append(entities, e)
	}

	linked, err := aggregate.Link(c, entities, trips)
	if err != nil {
		return 0, err
	}

	out, err := entityRows(linked)
	if err != nil {
		return 0, err
	}
	if err := l.store.ReplaceEntities(ctx, c, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

func (l *Loader) loadRollups(ctx context.Context, c ledger.Collection, rows []json.RawMessage) (int, error) {
	out := make([]store.RollupRow, 0, len(rows))
	for _, raw := range rows {
		if blank(raw) {
			continue
		}
		key, err := rollupKey(c, raw)
		if err != nil {
			l.logger.Warn("skipping undecodable rollup", "collection", c, "error", err)
			continue
		}
		out = append(out, store.RollupRow{Key: key, Payload: raw})
	}
	if err := l.store.ReplaceRollups(ctx, c, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// Append merges the remote address and name sheets into the local
// aggregates. Each call counts the remote rows again, so callers append a
// given batch once. Returns the number of entities written.
func (l *Loader) Append(ctx context.Context) (int, error) {
	cs := []ledger.Collection{ledger.Addresses, ledger.Names}
	rows, err := l.remote.FetchSecondary(ctx, cs)
	if err != nil {
		return 0, NewRemoteError("", "", "fetch secondary", err)
	}

	written := 0
	for _, c := range cs {
		var facts []aggregate.Fact
		for _, raw := range rows[c] {
			if blank(raw) {
				continue
			}
			var e aggregate.Entity
			if err := json.Unmarshal(raw, &e); err != nil {
				l.logger.Warn("skipping undecodable entity", "collection", c, "error", err)
				continue
			}
			facts = append(facts, aggregate.FactFromEntity(e))
		}

		n, err := l.merge(ctx, c, facts)
		if err != nil {
			return written, err
		}
		written += n
	}

	l.logger.Info("append finished", "entities", written)
	return written, nil
}

// Absorb merges the facts of newly committed trips into the aggregates.
// Returns the number of entities written.
func (l *Loader) Absorb(ctx context.Context, trips []ledger.Trip) (int, error) {
	written := 0
	for c, facts := range aggregate.FactsFromTrips(trips) {
		n, err := l.merge(ctx, c, facts)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (l *Loader) merge(ctx context.Context, c ledger.Collection, facts []aggregate.Fact) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	m, err := aggregate.NewMerger(c, l.tracker.ids.Generate)
	if err != nil {
		return 0, err
	}

	var lookupErr error
	lookup := func(nk string) (aggregate.Entity, bool) {
		row, err := l.store.GetEntity(ctx, c, nk)
		if errors.Is(err, store.ErrNotFound) {
			return aggregate.Entity{}, false
		}
		if err != nil {
			lookupErr = err
			return aggregate.Entity{}, false
		}
		var e aggregate.Entity
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			lookupErr = fmt.Errorf("decode %s %q: %w", c, nk, err)
			return aggregate.Entity{}, false
		}
		e.LocalID = row.LocalID
		return e, true
	}

	entities := m.Merge(facts, lookup)
	if lookupErr != nil {
		return 0, lookupErr
	}

	rows, err := entityRows(entities)
	if err != nil {
		return 0, err
	}
	if err := l.store.PutEntities(ctx, c, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// liveTrips returns every trip not marked deleted.
func (l *Loader) liveTrips(ctx context.Context) ([]ledger.Trip, error) {
	records, err := l.store.List(ctx, ledger.Trips)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	trips := make([]ledger.Trip, 0, len(records))
	for _, r := range records {
		if r.State == store.PendingDelete {
			continue
		}
		var t ledger.Trip
		if err := r.Decode(&t); err != nil {
			l.logger.Warn("skipping undecodable trip", "local_id", r.LocalID, "error", err)
			continue
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func (l *Loader) begin(total int) {
	l.logger.Info("load starting", "steps", total)
	if l.status != nil {
		l.status.Begin(OpLoad, total)
	}
}

func (l *Loader) progress(n int) {
	if l.status != nil {
		l.status.Progress(n, "")
	}
}

func (l *Loader) message(text string, level MessageLevel) {
	if l.status != nil {
		l.status.AddMessage(text, level)
	}
}

func (l *Loader) fail(err error) {
	l.logger.Error("load failed", "error", err)
	if l.status != nil {
		l.status.Fail(err.Error())
	}
}

func entityRows(entities []aggregate.Entity) ([]store.EntityRow, error) {
	rows := make([]store.EntityRow, 0, len(entities))
	for _, e := range entities {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode entity %q: %w", e.Key, err)
		}
		rows = append(rows, store.EntityRow{NaturalKey: e.NaturalKey, LocalID: e.LocalID, Payload: payload})
	}
	return rows, nil
}

// blank reports whether a remote row is empty.
func blank(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// rollupKey returns the key a rollup row is stored under.
func rollupKey(c ledger.Collection, raw json.RawMessage) (string, error) {
	var key string
	switch c {
	case ledger.Daily:
		var d ledger.DailyRollup
		if err := json.Unmarshal(raw, &d); err != nil {
			return "", err
		}
		key = d.Date
	case ledger.Weekdays:
		var w ledger.WeekdayRollup
		if err := json.Unmarshal(raw, &w); err != nil {
			return "", err
		}
		key = w.Day
	case ledger.Weekly:
		var w ledger.WeeklyRollup
		if err := json.Unmarshal(raw, &w); err != nil {
			return "", err
		}
		key = w.Begin
	case ledger.Yearly:
		var y ledger.YearlyRollup
		if err := json.Unmarshal(raw, &y); err != nil {
			return "", err
		}
		if y.Year > 0 {
			key = strconv.Itoa(y.Year)
		}
	default:
		return "", fmt.Errorf("%s is not a rollup collection", c)
	}
	if key == "" {
		return "", fmt.Errorf("%s row has no key", c)
	}
	return key, nil
}
