package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
)

// GetEntity returns the aggregate entity stored under naturalKey.
// Returns ErrNotFound if absent.
func (s *Store) GetEntity(ctx context.Context, c ledger.Collection, naturalKey string) (EntityRow, error) {
	t, err := table(c, ledger.KindAggregate)
	if err != nil {
		return EntityRow{}, err
	}

	var (
		row     EntityRow
		payload string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT natural_key, local_id, payload FROM `+t+` WHERE natural_key = ?`, naturalKey).
		Scan(&row.NaturalKey, &row.LocalID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return EntityRow{}, fmt.Errorf("get %s %q: %w", c, naturalKey, ErrNotFound)
	}
	if err != nil {
		return EntityRow{}, fmt.Errorf("get %s %q: %w", c, naturalKey, err)
	}
	row.Payload = json.RawMessage(payload)
	return row, nil
}

// ListEntities returns every entity of c ordered by natural key.
func (s *Store) ListEntities(ctx context.Context, c ledger.Collection) ([]EntityRow, error) {
	t, err := table(c, ledger.KindAggregate)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT natural_key, local_id, payload FROM `+t+` ORDER BY natural_key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	out := []EntityRow{}
	for rows.Next() {
		var (
			row     EntityRow
			payload string
		)
		if err := rows.Scan(&row.NaturalKey, &row.LocalID, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		row.Payload = json.RawMessage(payload)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return out, nil
}

// PutEntities upserts entities by natural key in one transaction. The
// local_id of an existing row is never changed.
func (s *Store) PutEntities(ctx context.Context, c ledger.Collection, entities []EntityRow) error {
	t, err := table(c, ledger.KindAggregate)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO `+t+` (natural_key, local_id, payload)
				VALUES (?, ?, ?)
				ON CONFLICT(natural_key) DO UPDATE SET payload = excluded.payload
			`, e.NaturalKey, e.LocalID, string(e.Payload))
			if err != nil {
				return fmt.Errorf("put %q: %w", e.NaturalKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", c, err)
	}
	return nil
}

// ReplaceEntities atomically replaces the contents of an aggregate collection.
func (s *Store) ReplaceEntities(ctx context.Context, c ledger.Collection, entities []EntityRow) error {
	t, err := table(c, ledger.KindAggregate)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		for _, e := range entities {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO `+t+` (natural_key, local_id, payload) VALUES (?, ?, ?)`,
				e.NaturalKey, e.LocalID, string(e.Payload))
			if err != nil {
				return fmt.Errorf("insert %q: %w", e.NaturalKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", c, err)
	}
	return nil
}

// GetRollup returns the rollup stored under key.
// Returns ErrNotFound if absent.
func (s *Store) GetRollup(ctx context.Context, c ledger.Collection, key string) (RollupRow, error) {
	t, err := table(c, ledger.KindRollup)
	if err != nil {
		return RollupRow{}, err
	}

	var (
		row     RollupRow
		payload string
	)
	err = s.db.QueryRowContext(ctx, `SELECT rollup_key, payload FROM `+t+` WHERE rollup_key = ?`, key).
		Scan(&row.Key, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return RollupRow{}, fmt.Errorf("get %s %q: %w", c, key, ErrNotFound)
	}
	if err != nil {
		return RollupRow{}, fmt.Errorf("get %s %q: %w", c, key, err)
	}
	row.Payload = json.RawMessage(payload)
	return row, nil
}

// ListRollups returns every rollup of c ordered by key.
func (s *Store) ListRollups(ctx context.Context, c ledger.Collection) ([]RollupRow, error) {
	t, err := table(c, ledger.KindRollup)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rollup_key, payload FROM `+t+` ORDER BY rollup_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	out := []RollupRow{}
	for rows.Next() {
		var (
			row     RollupRow
			payload string
		)
		if err := rows.Scan(&row.Key, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		row.Payload = json.RawMessage(payload)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return out, nil
}

// PutRollup upserts one rollup row.
func (s *Store) PutRollup(ctx context.Context, c ledger.Collection, row RollupRow) error {
	t, err := table(c, ledger.KindRollup)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+t+` (rollup_key, payload) VALUES (?, ?)
		ON CONFLICT(rollup_key) DO UPDATE SET payload = excluded.payload
	`, row.Key, string(row.Payload))
	if err != nil {
		return fmt.Errorf("put %s %q: %w", c, row.Key, err)
	}
	return nil
}

// ReplaceRollups atomically replaces the contents of a rollup collection.
func (s *Store) ReplaceRollups(ctx context.Context, c ledger.Collection, rows []RollupRow) error {
	t, err := table(c, ledger.KindRollup)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+t+` (rollup_key, payload) VALUES (?, ?)`, r.Key, string(r.Payload)); err != nil {
				return fmt.Errorf("insert %q: %w", r.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", c, err)
	}
	return nil
}
