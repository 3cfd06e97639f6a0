package engine

import (
	"time"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

// DefaultMaxRetries is the number of Transient failures after which an entry
// is quarantined with reason max_retries.
const DefaultMaxRetries = 3

// Outcome is what the orchestrator does with an entry after a failed attempt.
type Outcome string

const (
	// OutcomeRequeue writes the entry back to the pending queue.
	OutcomeRequeue Outcome = "requeue"

	// OutcomeQuarantine moves the entry into quarantine.
	OutcomeQuarantine Outcome = "quarantine"

	// OutcomeAbort leaves the entry untouched and stops the pass.
	OutcomeAbort Outcome = "abort"
)

// Decision is the policy's verdict for one failed attempt.
type Decision struct {
	Outcome Outcome

	// Entry is the entry to persist for OutcomeRequeue, and the unchanged
	// entry for OutcomeAbort.
	Entry record.QueueEntry

	// Quarantined is set for OutcomeQuarantine.
	Quarantined *record.QuarantinedEntry
}

// Policy is the per-entry retry/quarantine state machine.
//
//	Transient:      retryCount+1; >= MaxRetries -> quarantine(max_retries), else requeue
//	Conflict:       quarantine(conflict), retryCount unchanged
//	Authentication: abort the pass, entry untouched
type Policy struct {
	MaxRetries int
}

// DefaultPolicy returns a Policy with DefaultMaxRetries.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries}
}

// Decide returns the Decision for entry e after an attempt failed with err of
// class. Decide is pure: it never touches the store.
func (p Policy) Decide(e record.QueueEntry, class ErrorClass, err error, now time.Time) Decision {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	switch class {
	case ClassAuthentication:
		return Decision{Outcome: OutcomeAbort, Entry: e}

	case ClassConflict:
		failed := withError(e, err, now)
		return Decision{
			Outcome:     OutcomeQuarantine,
			Quarantined: quarantine(failed, record.ReasonConflict, err, now),
		}
	}

	failed := withError(e, err, now)
	failed.RetryCount = e.RetryCount + 1
	if failed.RetryCount >= maxRetries {
		return Decision{
			Outcome:     OutcomeQuarantine,
			Quarantined: quarantine(failed, record.ReasonMaxRetries, err, now),
		}
	}
	return Decision{Outcome: OutcomeRequeue, Entry: failed}
}

func withError(e record.QueueEntry, err error, now time.Time) record.QueueEntry {
	at := now
	e.LastError = errorMessage(err)
	e.LastErrorAt = &at
	return e
}

func quarantine(e record.QueueEntry, reason record.Reason, err error, now time.Time) *record.QuarantinedEntry {
	return &record.QuarantinedEntry{
		QueueEntry:    e,
		QuarantinedAt: now,
		Reason:        reason,
		ErrorMessage:  errorMessage(err),
		ErrorCode:     remote.CodeOf(err),
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
