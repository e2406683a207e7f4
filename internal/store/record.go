package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
)

// LifecycleState tracks whether a local mutation has reached the remote store.
type LifecycleState string

const (
	Clean         LifecycleState = "clean"
	PendingCreate LifecycleState = "pending_create"
	PendingUpdate LifecycleState = "pending_update"
	PendingDelete LifecycleState = "pending_delete"
)

// Pending reports whether the state still needs a commit.
func (s LifecycleState) Pending() bool {
	return s != Clean
}

// Record is a row of a syncable collection: the lifecycle envelope plus
// the opaque payload.
type Record struct {
	Collection ledger.Collection `json:"collection"`
	LocalID    string            `json:"local_id"`
	Seq        int64             `json:"seq"`
	State      LifecycleState    `json:"state"`
	Version    int64             `json:"version"`
	Key        string            `json:"key,omitempty"`
	Date       string            `json:"date,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
}

// Decode unmarshals the payload into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", r.Collection, r.LocalID, err)
	}
	return nil
}

// EntityRow is a row of an aggregate collection.
type EntityRow struct {
	NaturalKey string          `json:"natural_key"`
	LocalID    string          `json:"local_id"`
	Payload    json.RawMessage `json:"payload"`
}

// RollupRow is a row of a rollup collection.
type RollupRow struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

const recordColumns = `local_id, seq, state, version, group_key, date, payload`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(c ledger.Collection, row rowScanner) (Record, error) {
	var (
		r       Record
		state   string
		payload string
	)
	if err := row.Scan(&r.LocalID, &r.Seq, &state, &r.Version, &r.Key, &r.Date, &payload); err != nil {
		return Record{}, err
	}
	r.Collection = c
	r.State = LifecycleState(state)
	r.Payload = json.RawMessage(payload)
	return r, nil
}

func scanRecords(c ledger.Collection, rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(c, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return records, nil
}
