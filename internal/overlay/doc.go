// Package overlay maintains optimistic client-visible state and merges it
// with cached remote snapshots for offline reads.
//
// The Reconciler writes overlay rows when a collaborator mutates a record and
// removes them once the record is confirmed remotely. The View projects
// cache plus overlay into a single list per table without mutating either.
package overlay
