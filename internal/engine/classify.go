package engine

import (
	"github.com/roach88/fieldsync/internal/remote"
)

// ErrorClass is the routing category of a failed remote call.
type ErrorClass string

const (
	ClassAuthentication ErrorClass = "authentication"
	ClassConflict       ErrorClass = "conflict"
	ClassTransient      ErrorClass = "transient"
)

// Classify maps a remote-call failure onto an ErrorClass.
//
// The remote boundary reports its own category through *remote.Error; the
// classifier only reads that Kind and never inspects message text.
// Authentication is checked before Conflict before Transient. Anything that
// is not a categorized auth or conflict failure (network errors, timeouts,
// remote.KindOther, unknown error types) is Transient.
//
// Classify(nil) returns "".
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	switch remote.KindOf(err) {
	case remote.KindAuth:
		return ClassAuthentication
	case remote.KindConflict:
		return ClassConflict
	}
	return ClassTransient
}
