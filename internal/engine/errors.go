package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
)

// SyncError represents a failure detected by the tracker or reconciler.
//
// SyncError includes structured fields for diagnostics and status messages.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// Collection and LocalID identify the affected record, when there is one.
	Collection ledger.Collection
	LocalID    string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeNotFound indicates a mutation on an unknown local id.
	ErrCodeNotFound SyncErrorCode = "NOT_FOUND"

	// ErrCodeStaleCommit indicates the record was edited while its push was
	// in flight. The record stays pending and is retried next cycle.
	ErrCodeStaleCommit SyncErrorCode = "STALE_COMMIT"

	// ErrCodeRemoteUnavailable indicates a network or remote-side failure.
	ErrCodeRemoteUnavailable SyncErrorCode = "REMOTE_UNAVAILABLE"

	// ErrCodeCompactionGap indicates a sequence slot could not be moved
	// during compaction. The slot is skipped.
	ErrCodeCompactionGap SyncErrorCode = "COMPACTION_GAP"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.LocalID != "" {
		msg = fmt.Sprintf("%s (%s/%s)", msg, e.Collection, e.LocalID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotFound returns true if err is a NOT_FOUND sync error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsStale returns true if err is a STALE_COMMIT sync error.
func IsStale(err error) bool { return hasCode(err, ErrCodeStaleCommit) }

// IsRemoteUnavailable returns true if err is a REMOTE_UNAVAILABLE sync error.
func IsRemoteUnavailable(err error) bool { return hasCode(err, ErrCodeRemoteUnavailable) }

// IsCompactionGap returns true if err is a COMPACTION_GAP sync error.
func IsCompactionGap(err error) bool { return hasCode(err, ErrCodeCompactionGap) }

// NewNotFoundError creates a SyncError for a mutation on an unknown record.
func NewNotFoundError(c ledger.Collection, localID string, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeNotFound,
		Message:    "record does not exist",
		Collection: c,
		LocalID:    localID,
		Err:        err,
	}
}

// NewStaleError creates a SyncError for a push superseded by a local edit.
func NewStaleError(c ledger.Collection, localID string, selected, stored int64) *SyncError {
	return &SyncError{
		Code:       ErrCodeStaleCommit,
		Message:    fmt.Sprintf("version advanced during push (%d -> %d)", selected, stored),
		Collection: c,
		LocalID:    localID,
	}
}

// NewRemoteError creates a SyncError for a failed remote call.
func NewRemoteError(c ledger.Collection, localID, op string, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeRemoteUnavailable,
		Message:    op + " failed",
		Collection: c,
		LocalID:    localID,
		Err:        err,
	}
}

// NewCompactionGapError creates a SyncError for a slot compaction skipped.
func NewCompactionGapError(c ledger.Collection, localID string, from, to int64, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeCompactionGap,
		Message:    fmt.Sprintf("could not move seq %d to %d", from, to),
		Collection: c,
		LocalID:    localID,
		Err:        err,
	}
}
