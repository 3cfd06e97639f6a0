// Package engine implements the offline sync orchestrator.
//
// Collaborators enqueue mutations (Enqueue); each is written durably to the
// pending queue and, for inserts and updates, to the optimistic overlay. When
// connectivity returns (SetOnline) or a manual trigger fires (TriggerSync),
// DrainQueue replays the queue against the remote store.
//
// ARCHITECTURE:
//
// Single-Flight Pass:
// A pass is guarded by an in-process compare-and-swap flag. A second
// DrainQueue while one is running returns immediately (PassResult.Skipped).
// Entries in a pass are replayed one at a time, never in parallel.
//
// Pass Flow:
//  1. Abort if offline or the queue is empty
//  2. Order entries by table tier (Order), then enqueuedAt
//  3. For each entry: rewrite *_id fields through the pass's IDMapping,
//     dispatch insert/update/delete, classify any failure (Classify) and
//     apply the retry policy (Policy.Decide)
//  4. Fire the auth-failure hook if the pass aborted, then the
//     sync-completion hook with the client ids synced in this pass
//
// Failure Routing:
//
//	Authentication -> stop the pass, entry untouched
//	Conflict       -> quarantine (conflict), retry count unchanged
//	Transient      -> retry count + 1, quarantine (max_retries) at the bound
//
// Local-store failures are logged and counted; they never remove an entry
// from the pending queue.
package engine
