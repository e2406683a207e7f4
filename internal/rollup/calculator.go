package rollup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// ShiftWriter persists a recomputed shift as a tracked local edit so the
// new totals reach the remote store.
type ShiftWriter interface {
	Update(ctx context.Context, c ledger.Collection, localID string, payload ledger.Indexed) (store.Record, error)
}

// Calculator recomputes derived shift totals and rollups in the store.
type Calculator struct {
	store  *store.Store
	writer ShiftWriter
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithNow sets the clock used to find the current week.
func WithNow(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) { c.logger = l }
}

// NewCalculator creates a calculator reading from s and writing shifts
// through w.
func NewCalculator(s *store.Store, w ShiftWriter, opts ...Option) *Calculator {
	c := &Calculator{
		store:  s,
		writer: w,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecomputeAll recomputes every live shift and writes back those whose
// totals changed. Returns the number of shifts written.
func (c *Calculator) RecomputeAll(ctx context.Context) (int, error) {
	records, err := c.store.List(ctx, ledger.Shifts)
	if err != nil {
		return 0, fmt.Errorf("list shifts: %w", err)
	}
	return c.recompute(ctx, records)
}

// RecomputeKeys recomputes the live shifts with the given keys.
func (c *Calculator) RecomputeKeys(ctx context.Context, keys ...string) (int, error) {
	var records []store.Record
	for _, k := range keys {
		rs, err := c.store.ByKey(ctx, ledger.Shifts, k)
		if err != nil {
			return 0, fmt.Errorf("shifts for key %q: %w", k, err)
		}
		records = append(records, rs...)
	}
	return c.recompute(ctx, records)
}

func (c *Calculator) recompute(ctx context.Context, records []store.Record) (int, error) {
	written := 0
	for _, rec := range records {
		if rec.State == store.PendingDelete {
			continue
		}

		var shift ledger.Shift
		if err := rec.Decode(&shift); err != nil {
			c.logger.Warn("skipping undecodable shift", "local_id", rec.LocalID, "error", err)
			continue
		}

		children, err := c.children(ctx, shift.Key)
		if err != nil {
			return written, err
		}

		updated := Recompute(shift, children)
		if updated.Totals.Equal(shift.Totals) {
			continue
		}

		if _, err := c.writer.Update(ctx, ledger.Shifts, rec.LocalID, updated); err != nil {
			return written, fmt.Errorf("write shift %s: %w", rec.LocalID, err)
		}
		written++
		c.logger.Debug("shift totals updated", "local_id", rec.LocalID, "key", shift.Key,
			"grand_total", updated.Totals.GrandTotal.String())
	}
	return written, nil
}

func (c *Calculator) children(ctx context.Context, key string) ([]Child, error) {
	records, err := c.store.ByKey(ctx, ledger.Trips, key)
	if err != nil {
		return nil, fmt.Errorf("trips for key %q: %w", key, err)
	}

	children := make([]Child, 0, len(records))
	for _, r := range records {
		var trip ledger.Trip
		if err := r.Decode(&trip); err != nil {
			c.logger.Warn("skipping undecodable trip", "local_id", r.LocalID, "error", err)
			continue
		}
		children = append(children, Child{Trip: trip, State: r.State})
	}
	return children, nil
}

// liveShifts returns every shift not marked deleted.
func (c *Calculator) liveShifts(ctx context.Context) ([]ledger.Shift, error) {
	records, err := c.store.List(ctx, ledger.Shifts)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}

	shifts := make([]ledger.Shift, 0, len(records))
	for _, r := range records {
		if r.State == store.PendingDelete {
			continue
		}
		var s ledger.Shift
		if err := r.Decode(&s); err != nil {
			c.logger.Warn("skipping undecodable shift", "local_id", r.LocalID, "error", err)
			continue
		}
		shifts = append(shifts, s)
	}
	return shifts, nil
}

// RefreshRollups rebuilds the daily, weekly and yearly rollup tables from
// the live shifts and updates the current week's weekday amounts.
func (c *Calculator) RefreshRollups(ctx context.Context) error {
	shifts, err := c.liveShifts(ctx)
	if err != nil {
		return err
	}

	days := DailyTotals(shifts)
	if err := replace(ctx, c.store, ledger.Daily, days, func(d ledger.DailyRollup) string { return d.Date }); err != nil {
		return err
	}
	if err := replace(ctx, c.store, ledger.Weekly, WeeklyTotals(days), func(w ledger.WeeklyRollup) string { return w.Begin }); err != nil {
		return err
	}
	if err := replace(ctx, c.store, ledger.Yearly, YearlyTotals(days), yearKey); err != nil {
		return err
	}

	_, err = c.UpsertWeekdays(ctx, days)
	return err
}

// UpsertWeekdays sets the current amount of each weekday from the days of
// the current week. A weekday is written only when its amount changed;
// days before the start of the current week are ignored. Returns the
// number of weekdays written.
func (c *Calculator) UpsertWeekdays(ctx context.Context, days []ledger.DailyRollup) (int, error) {
	weekStart := ledger.FormatDate(ledger.StartOfWeek(c.now()))

	written := 0
	for _, d := range days {
		if d.Date < weekStart {
			continue
		}

		var wd ledger.WeekdayRollup
		row, err := c.store.GetRollup(ctx, ledger.Weekdays, d.Day)
		switch {
		case errors.Is(err, store.ErrNotFound):
			wd = ledger.WeekdayRollup{Day: d.Day}
		case err != nil:
			return written, fmt.Errorf("get weekday %s: %w", d.Day, err)
		default:
			if err := json.Unmarshal(row.Payload, &wd); err != nil {
				return written, fmt.Errorf("decode weekday %s: %w", d.Day, err)
			}
		}

		if row.Key != "" && wd.CurrentAmount.Equal(d.Total) {
			continue
		}
		wd.CurrentAmount = d.Total

		payload, err := json.Marshal(wd)
		if err != nil {
			return written, fmt.Errorf("encode weekday %s: %w", d.Day, err)
		}
		if err := c.store.PutRollup(ctx, ledger.Weekdays, store.RollupRow{Key: d.Day, Payload: payload}); err != nil {
			return written, fmt.Errorf("put weekday %s: %w", d.Day, err)
		}
		written++
	}
	return written, nil
}

func replace[T any](ctx context.Context, s *store.Store, c ledger.Collection, items []T, key func(T) string) error {
	rows := make([]store.RollupRow, 0, len(items))
	for _, it := range items {
		payload, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode %s rollup: %w", c, err)
		}
		rows = append(rows, store.RollupRow{Key: key(it), Payload: payload})
	}
	if err := s.ReplaceRollups(ctx, c, rows); err != nil {
		return fmt.Errorf("replace %s: %w", c, err)
	}
	return nil
}
