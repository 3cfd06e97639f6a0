package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Action is the kind of mutation a QueueEntry replays.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ParseAction converts a string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q (want insert, update or delete)", s)
	}
	return a, nil
}

// Reason records why an entry was quarantined.
type Reason string

const (
	ReasonConflict   Reason = "conflict"
	ReasonMaxRetries Reason = "max_retries"
)

// Payload is the field map submitted to the remote store.
type Payload map[string]any

// Clone returns a shallow copy of p. Values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ID returns the payload's "id" field as a string, or "" if absent.
func (p Payload) ID() string {
	v, ok := p["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		// Integer keys decoded without UseNumber.
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return fmt.Sprint(v)
}

// QueueEntry is one pending mutation.
type QueueEntry struct {
	EntryID     string     `json:"entry_id"`
	RecordID    string     `json:"record_id"`
	Table       string     `json:"table"`
	Action      Action     `json:"action"`
	Payload     Payload    `json:"payload"`
	EnqueuedAt  int64      `json:"enqueued_at"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// NewQueueEntry builds a QueueEntry whose payload id is aligned with recordID.
// The payload is copied; the caller's map is never mutated.
func NewQueueEntry(entryID, recordID, table string, action Action, payload Payload, enqueuedAt int64) (QueueEntry, error) {
	if entryID == "" {
		return QueueEntry{}, fmt.Errorf("new queue entry: entry id is required")
	}
	if recordID == "" {
		return QueueEntry{}, fmt.Errorf("new queue entry: record id is required")
	}
	table = NormalizeTable(table)
	if table == "" {
		return QueueEntry{}, fmt.Errorf("new queue entry: table is required")
	}
	if !action.Valid() {
		return QueueEntry{}, fmt.Errorf("new queue entry: unknown action %q", action)
	}
	if id := payload.ID(); id != "" && id != recordID {
		return QueueEntry{}, fmt.Errorf("new queue entry: payload id %q does not match record id %q", id, recordID)
	}

	p := payload.Clone()
	p["id"] = recordID

	return QueueEntry{
		EntryID:    entryID,
		RecordID:   recordID,
		Table:      table,
		Action:     action,
		Payload:    p,
		EnqueuedAt: enqueuedAt,
	}, nil
}

// QuarantinedEntry is a QueueEntry the automatic pass gave up on.
type QuarantinedEntry struct {
	QueueEntry
	QuarantinedAt time.Time `json:"quarantined_at"`
	Reason        Reason    `json:"reason"`
	ErrorMessage  string    `json:"error_message"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

// Requeued strips quarantine metadata and resets the retry budget.
func (q QuarantinedEntry) Requeued() QueueEntry {
	e := q.QueueEntry
	e.RetryCount = 0
	e.LastError = ""
	e.LastErrorAt = nil
	return e
}

// OverlayEntry is an optimistic, not yet confirmed record snapshot.
type OverlayEntry struct {
	Table          string    `json:"table"`
	ID             string    `json:"id"`
	Data           Payload   `json:"data"`
	IsOptimistic   bool      `json:"is_optimistic"`
	CreatedOffline bool      `json:"created_offline"`
	CreatedAt      time.Time `json:"created_at"`
}

// CachedEntry is the last fetched remote state of a record.
type CachedEntry struct {
	Table     string    `json:"table"`
	ID        string    `json:"id"`
	Data      Payload   `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NormalizeTable trims and NFC-normalizes a table name so that keys written
// from different input sources compare equal.
func NormalizeTable(table string) string {
	return norm.NFC.String(strings.TrimSpace(table))
}
