package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the target row does not exist remotely.
var ErrNotFound = errors.New("remote row not found")

// Kind categorizes a remote failure.
type Kind string

const (
	// KindAuth indicates invalid or expired credentials.
	KindAuth Kind = "AUTH"

	// KindConflict indicates a uniqueness or referential-integrity violation.
	KindConflict Kind = "CONFLICT"

	// KindTransient indicates a failure worth retrying (network, timeout, 5xx).
	KindTransient Kind = "TRANSIENT"

	// KindOther indicates a failure the remote could not categorize.
	KindOther Kind = "OTHER"
)

// Error is a categorized remote failure.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Status is the HTTP status code, or 0 if no response was received.
	Status int

	// Code is the backend error code (e.g. "23505", "PGRST301").
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (status=%d, code=%s)", e.Kind, e.Message, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status=%d)", e.Kind, e.Message, e.Status)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (code=%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not a *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// CodeOf returns the backend code of err, or "" if none.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsAuth returns true if err is an authentication failure.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsConflict returns true if err is a conflict failure.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// NewAuthError creates an Error for invalid or expired credentials.
func NewAuthError(status int, code, message string) *Error {
	return &Error{Kind: KindAuth, Status: status, Code: code, Message: message}
}

// NewConflictError creates an Error for a uniqueness or referential violation.
func NewConflictError(status int, code, message string) *Error {
	return &Error{Kind: KindConflict, Status: status, Code: code, Message: message}
}

// NewTransientError creates an Error wrapping a retryable cause.
func NewTransientError(status int, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Status: status, Message: message, Err: cause}
}
