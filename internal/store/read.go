package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
)

// Get returns the record with the given local id.
// Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, c ledger.Collection, localID string) (Record, error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return Record{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+t+` WHERE local_id = ?`, localID)
	r, err := scanRecord(c, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s/%s: %w", c, localID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s/%s: %w", c, localID, err)
	}
	return r, nil
}

// BySeq returns the record currently holding seq.
// Returns ErrNotFound if no record holds it.
func (s *Store) BySeq(ctx context.Context, c ledger.Collection, seq int64) (Record, error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return Record{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+t+` WHERE seq = ? ORDER BY local_id ASC LIMIT 1`, seq)
	r, err := scanRecord(c, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s seq %d: %w", c, seq, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s seq %d: %w", c, seq, err)
	}
	return r, nil
}

// List returns every record of c ordered by seq.
func (s *Store) List(ctx context.Context, c ledger.Collection) ([]Record, error) {
	return s.query(ctx, c, ``)
}

// ByKey returns the records whose grouping key equals key (for trips, the
// shift key).
func (s *Store) ByKey(ctx context.Context, c ledger.Collection, key string) ([]Record, error) {
	return s.query(ctx, c, `WHERE group_key = ?`, key)
}

// ByDateRange returns records dated within [from, to] inclusive.
func (s *Store) ByDateRange(ctx context.Context, c ledger.Collection, from, to string) ([]Record, error) {
	return s.query(ctx, c, `WHERE date >= ? AND date <= ?`, from, to)
}

// Pending returns all records whose state is not clean, ordered by seq.
func (s *Store) Pending(ctx context.Context, c ledger.Collection) ([]Record, error) {
	return s.query(ctx, c, `WHERE state <> 'clean'`)
}

func (s *Store) query(ctx context.Context, c ledger.Collection, where string, args ...any) ([]Record, error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+t+` `+where+` ORDER BY seq ASC, local_id COLLATE BINARY ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c, err)
	}
	return scanRecords(c, rows)
}

// PendingCount returns the number of pending records across all syncable
// collections.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	total := 0
	for _, c := range ledger.SyncableCollections {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+string(c)+` WHERE state <> 'clean'`).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count pending %s: %w", c, err)
		}
		total += n
	}
	return total, nil
}

// MaxSeq returns the largest seq in c, or 0 when c is empty.
func (s *Store) MaxSeq(ctx context.Context, c ledger.Collection) (int64, error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return 0, err
	}

	var max int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM `+t).Scan(&max); err != nil {
		return 0, fmt.Errorf("max seq %s: %w", c, err)
	}
	return max, nil
}

// FirstGap returns the smallest seq in [1, MaxSeq] that no record holds.
// ok is false when the sequence is already dense.
func (s *Store) FirstGap(ctx context.Context, c ledger.Collection) (gap int64, ok bool, err error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return 0, false, err
	}

	var max int64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			CASE WHEN NOT EXISTS (SELECT 1 FROM `+t+` WHERE seq = 1) THEN 1
			ELSE (SELECT MIN(a.seq) + 1 FROM `+t+` a
			      WHERE NOT EXISTS (SELECT 1 FROM `+t+` b WHERE b.seq = a.seq + 1))
			END,
			COALESCE((SELECT MAX(seq) FROM `+t+`), 0)
	`).Scan(&gap, &max)
	if err != nil {
		return 0, false, fmt.Errorf("first gap %s: %w", c, err)
	}
	if gap > max {
		return 0, false, nil
	}
	return gap, true, nil
}
