package engine

import (
	"errors"
	"fmt"
)

// SyncError represents an error raised by the sync engine itself, as opposed
// to a remote failure (see remote.Error) which is classified and routed
// through the retry policy.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// EntryID identifies the affected queue entry, if any.
	EntryID string

	// Table identifies the affected table, if any.
	Table string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync engine errors.
type SyncErrorCode string

const (
	// ErrCodeInvalidMutation indicates a mutation could not be turned into a queue entry.
	ErrCodeInvalidMutation SyncErrorCode = "INVALID_MUTATION"

	// ErrCodeEntryNotFound indicates a referenced queue or quarantine entry doesn't exist.
	ErrCodeEntryNotFound SyncErrorCode = "ENTRY_NOT_FOUND"

	// ErrCodeStoreFailure indicates the local store rejected a read or write.
	ErrCodeStoreFailure SyncErrorCode = "STORE_FAILURE"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntryID != "" {
		msg = fmt.Sprintf("%s (entry=%s)", msg, e.EntryID)
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

// IsNotFoundError returns true if err reports a missing queue or quarantine entry.
// Uses errors.As to handle wrapped errors.
func IsNotFoundError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeEntryNotFound
	}
	return false
}

// IsInvalidMutationError returns true if err reports a rejected mutation.
func IsInvalidMutationError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeInvalidMutation
	}
	return false
}

// NewInvalidMutationError creates a SyncError for a rejected mutation.
func NewInvalidMutationError(table string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrCodeInvalidMutation,
		Message: "mutation rejected",
		Table:   table,
		Err:     cause,
	}
}

// NewNotFoundError creates a SyncError for a missing entry.
func NewNotFoundError(entryID string) *SyncError {
	return &SyncError{
		Code:    ErrCodeEntryNotFound,
		Message: "no such entry",
		EntryID: entryID,
	}
}

// NewStoreError creates a SyncError wrapping a local store failure.
func NewStoreError(op string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrCodeStoreFailure,
		Message: op,
		Err:     cause,
	}
}
