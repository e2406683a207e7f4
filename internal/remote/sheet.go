package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/gigledger/internal/ledger"
)

// Sheet is an in-memory positional store. Rows are 1-based.
//
// Thread-safety: Sheet is safe for concurrent use.
type Sheet struct {
	mu     sync.Mutex
	rows   map[ledger.Collection][]json.RawMessage
	fail   map[ledger.Collection]error
	onPush func(c ledger.Collection, row int64)
}

// NewSheet creates an empty sheet.
func NewSheet() *Sheet {
	return &Sheet{
		rows: make(map[ledger.Collection][]json.RawMessage),
		fail: make(map[ledger.Collection]error),
	}
}

// Fail makes every operation on c return err until Recover is called.
func (s *Sheet) Fail(c ledger.Collection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[c] = err
}

// Recover clears a failure installed by Fail.
func (s *Sheet) Recover(c ledger.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, c)
}

// OnPush installs a hook that runs before each push is applied, outside the
// sheet lock. Tests use it to interleave local edits with an in-flight push.
func (s *Sheet) OnPush(fn func(c ledger.Collection, row int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPush = fn
}

// Seed replaces the rows of c.
func (s *Sheet) Seed(c ledger.Collection, rows ...json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c] = append([]json.RawMessage(nil), rows...)
}

// Rows returns a copy of the rows of c.
func (s *Sheet) Rows(c ledger.Collection) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage{}, s.rows[c]...)
}

// PushRecord implements Remote.
func (s *Sheet) PushRecord(ctx context.Context, c ledger.Collection, row int64, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row < 1 {
		return fmt.Errorf("push %s row %d: row must be positive", c, row)
	}

	s.mu.Lock()
	hook := s.onPush
	s.mu.Unlock()
	if hook != nil {
		hook(c, row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[c]; err != nil {
		return err
	}

	rows := s.rows[c]
	for int64(len(rows)) < row {
		rows = append(rows, nil)
	}
	rows[row-1] = append(json.RawMessage(nil), payload...)
	s.rows[c] = rows
	return nil
}

// DeleteRecord implements Remote.
func (s *Sheet) DeleteRecord(ctx context.Context, c ledger.Collection, row int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[c]; err != nil {
		return err
	}

	rows := s.rows[c]
	if row < 1 || row > int64(len(rows)) {
		return fmt.Errorf("delete %s row %d: %w", c, row, ErrRowNotFound)
	}
	s.rows[c] = append(rows[:row-1:row-1], rows[row:]...)
	return nil
}

// FetchAll implements Remote.
func (s *Sheet) FetchAll(ctx context.Context, c ledger.Collection) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[c]; err != nil {
		return nil, err
	}
	return append([]json.RawMessage{}, s.rows[c]...), nil
}

// FetchSecondary implements Remote.
func (s *Sheet) FetchSecondary(ctx context.Context, cs []ledger.Collection) (map[ledger.Collection][]json.RawMessage, error) {
	out := make(map[ledger.Collection][]json.RawMessage, len(cs))
	for _, c := range cs {
		rows, err := s.FetchAll(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = rows
	}
	return out, nil
}
