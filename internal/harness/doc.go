// Package harness runs offline-sync scenarios against the real store and
// orchestrator, with a scripted in-memory remote, and records a
// deterministic trace for golden comparison.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: farm_then_cluster
//	description: "What this scenario validates"
//	online: false            # initial connectivity (default false)
//	max_retries: 3           # optional policy override
//	steps:
//	  - enqueue: {table: farms, action: insert, id: F1, payload: {name: North}}
//	  - seed: {table: farms, id: srv-9, data: {name: Existing}}
//	  - fail: {op: insert, table: clusters, kind: conflict, status: 409, code: "23505", message: dup}
//	  - online: true         # connectivity transition (drains on false -> true)
//	  - sync: true           # manual trigger
//	  - retry: F1            # retry the quarantined entry for record F1
//	  - refresh: farms       # re-fetch a table into the read cache
//	assertions:
//	  - type: synced
//	    ids: [F1, C1]
//
// Each step holds exactly one action.
//
// # Assertion Types
//
//   - pending_count: the pending queue holds count entries, any table
//   - quarantine_count: quarantine holds count entries
//   - quarantined: the entry for record is quarantined with reason (and retry_count)
//   - synced: the last sync-completion hook received exactly ids
//   - remote_row: the remote row table/id contains expect (subset match)
//   - trace_contains: some trace line contains line
//   - trace_order: lines appear in the trace in order (as substrings)
//
// # Determinism
//
// Entry ids come from a fixed generator ("e-1", "e-2", ...), enqueue stamps
// from a logical clock, server ids from the fake remote ("srv-1", ...), and
// payloads render as canonical JSON, so identical scenarios produce
// byte-identical traces.
package harness
