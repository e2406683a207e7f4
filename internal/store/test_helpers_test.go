package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/gigledger/internal/ledger"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a pending trip record with a minimal payload.
func createTestRecord(localID, key, date string, version int64) Record {
	return Record{
		Collection: ledger.Trips,
		LocalID:    localID,
		State:      PendingCreate,
		Version:    version,
		Key:        key,
		Date:       date,
		Payload:    []byte(fmt.Sprintf(`{"key":%q,"date":%q}`, key, date)),
	}
}
