// Package record defines the durable data model of the offline outbox.
//
// Four record kinds are persisted by internal/store:
//   - QueueEntry: one pending mutation awaiting replay
//   - QuarantinedEntry: a mutation the automatic pass will no longer retry
//   - OverlayEntry: optimistic client-visible state not yet confirmed remotely
//   - CachedEntry: last known remote state of a record
//
// EntryID identifies a queue entry. RecordID identifies the domain record the
// entry mutates. The two are never interchangeable: one record can have many
// queued entries (insert then update), and a quarantined entry keeps its
// EntryID when restored.
package record
