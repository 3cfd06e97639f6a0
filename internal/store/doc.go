// Package store provides SQLite-backed durable storage for the offline outbox.
//
// The store holds four independently keyed collections:
//   - pending_queue: mutations awaiting replay, keyed by entry_id
//   - quarantine: mutations the automatic pass gave up on, keyed by entry_id
//   - optimistic_overlay: unconfirmed client state, keyed by (table_name, id)
//   - read_cache: last fetched remote state, keyed by (table_name, id)
//
// Every collection supports Put, Get, List, Delete and Clear. Steps that touch
// more than one collection for the same entry (Quarantine, Restore, Complete,
// ReplaceCache) run in a single transaction: either all of the step is durable
// or none of it is.
//
// # Ordering
//
// Queue listings are ordered by enqueued_at ASC, entry_id ASC so that two
// reads of an unchanged queue return the same sequence.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: A write is on disk before the call returns
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema is versioned with PRAGMA user_version. Migrations only add
// tables, so a database written by an older client upgrades in place.
package store
