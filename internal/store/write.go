package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
)

// InsertNext inserts r at seq = MaxSeq+1 and returns the stored record.
// The max lookup and the insert run in one transaction.
func (s *Store) InsertNext(ctx context.Context, r Record) (Record, error) {
	t, err := table(r.Collection, ledger.KindSyncable)
	if err != nil {
		return Record{}, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var max int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM `+t).Scan(&max); err != nil {
			return fmt.Errorf("max seq: %w", err)
		}
		r.Seq = max + 1
		return insertRecord(ctx, tx, t, r)
	})
	if err != nil {
		return Record{}, fmt.Errorf("insert %s: %w", r.Collection, err)
	}
	return r, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, t string, r Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+t+` (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.LocalID, r.Seq, string(r.State), r.Version, r.Key, r.Date, string(r.Payload))
	return err
}

// Update writes the state, version, index columns and payload of an
// existing record. Seq is left untouched; see Resequence.
// Returns ErrNotFound if the record does not exist.
func (s *Store) Update(ctx context.Context, r Record) error {
	t, err := table(r.Collection, ledger.KindSyncable)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE `+t+`
		SET state = ?, version = ?, group_key = ?, date = ?, payload = ?
		WHERE local_id = ?
	`, string(r.State), r.Version, r.Key, r.Date, string(r.Payload), r.LocalID)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", r.Collection, r.LocalID, err)
	}
	return expectOne(res, r.Collection, r.LocalID)
}

// ClearState marks a pending create/update clean, but only if the stored
// version still equals version. Returns false when the record was edited
// (or deleted) after the caller read it.
func (s *Store) ClearState(ctx context.Context, c ledger.Collection, localID string, version int64) (bool, error) {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE `+t+`
		SET state = 'clean'
		WHERE local_id = ? AND version = ? AND state IN ('pending_create', 'pending_update')
	`, localID, version)
	if err != nil {
		return false, fmt.Errorf("clear state %s/%s: %w", c, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear state %s/%s: rows affected: %w", c, localID, err)
	}
	return n == 1, nil
}

// Resequence moves a record to seq. A clean record becomes pending_update so
// its new row position reaches the remote store; pending states are kept.
func (s *Store) Resequence(ctx context.Context, c ledger.Collection, localID string, seq int64) error {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE `+t+`
		SET seq = ?,
		    state = CASE WHEN state = 'clean' THEN 'pending_update' ELSE state END
		WHERE local_id = ?
	`, seq, localID)
	if err != nil {
		return fmt.Errorf("resequence %s/%s: %w", c, localID, err)
	}
	return expectOne(res, c, localID)
}

// Delete removes a record. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, c ledger.Collection, localID string) error {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+t+` WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, localID, err)
	}
	return expectOne(res, c, localID)
}

// ReplaceAll atomically replaces the contents of c with records. Used by
// full loads from the remote store.
func (s *Store) ReplaceAll(ctx context.Context, c ledger.Collection, records []Record) error {
	t, err := table(c, ledger.KindSyncable)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		for _, r := range records {
			if err := insertRecord(ctx, tx, t, r); err != nil {
				return fmt.Errorf("insert %s: %w", r.LocalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", c, err)
	}
	return nil
}

func expectOne(res sql.Result, c ledger.Collection, localID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s/%s: rows affected: %w", c, localID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", c, localID, ErrNotFound)
	}
	return nil
}
