package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/roach88/gigledger/internal/ledger"
)

// ErrRowNotFound is returned when a row does not exist remotely. Deleting a
// missing row is treated as already done by callers.
var ErrRowNotFound = errors.New("remote row not found")

// Remote is the narrow interface the engine consumes.
type Remote interface {
	// PushRecord writes payload at row, padding with blank rows if row is
	// past the end of the sheet.
	PushRecord(ctx context.Context, c ledger.Collection, row int64, payload json.RawMessage) error

	// DeleteRecord removes row and shifts later rows up.
	DeleteRecord(ctx context.Context, c ledger.Collection, row int64) error

	// FetchAll returns every row of c in order. Blank rows are nil.
	FetchAll(ctx context.Context, c ledger.Collection) ([]json.RawMessage, error)

	// FetchSecondary returns the rows of several reference collections at once.
	FetchSecondary(ctx context.Context, cs []ledger.Collection) (map[ledger.Collection][]json.RawMessage, error)
}

// ErrOffline is returned by Offline for every call.
var ErrOffline = errors.New("no remote configured")

// Offline is a Remote that is never reachable. Commands that work on local
// data only run the engine against it.
type Offline struct{}

func (Offline) PushRecord(context.Context, ledger.Collection, int64, json.RawMessage) error {
	return ErrOffline
}

func (Offline) DeleteRecord(context.Context, ledger.Collection, int64) error {
	return ErrOffline
}

func (Offline) FetchAll(context.Context, ledger.Collection) ([]json.RawMessage, error) {
	return nil, ErrOffline
}

func (Offline) FetchSecondary(context.Context, []ledger.Collection) (map[ledger.Collection][]json.RawMessage, error) {
	return nil, ErrOffline
}
