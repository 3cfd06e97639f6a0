package engine

import (
	"context"
	"errors"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
)

// ListQuarantined returns every quarantined entry, oldest first.
func (o *Orchestrator) ListQuarantined(ctx context.Context) ([]record.QuarantinedEntry, error) {
	entries, err := o.store.ListQuarantined(ctx)
	if err != nil {
		return nil, NewStoreError("list quarantined", err)
	}
	return entries, nil
}

// RetryQuarantined moves a quarantined entry back to the pending queue with
// its retry count reset and quarantine metadata stripped, then runs a pass.
//
// The entry is replayed in the pass's own sort order. Its payload is not
// re-derived: foreign keys that pointed at client ids synced in an earlier
// pass still point at those client ids.
func (o *Orchestrator) RetryQuarantined(ctx context.Context, entryID string) (*PassResult, error) {
	restored, err := o.store.Restore(ctx, entryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFoundError(entryID)
	}
	if err != nil {
		return nil, NewStoreError("restore quarantined", err)
	}
	o.logger.Info("quarantined entry requeued", "entry_id", restored.EntryID, "table", restored.Table)
	return o.DrainQueue(ctx)
}

// DeleteQuarantined permanently discards one quarantined entry.
func (o *Orchestrator) DeleteQuarantined(ctx context.Context, entryID string) error {
	err := o.store.DeleteQuarantined(ctx, entryID)
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(entryID)
	}
	if err != nil {
		return NewStoreError("delete quarantined", err)
	}
	o.logger.Info("quarantined entry deleted", "entry_id", entryID)
	return nil
}

// ClearQuarantine permanently discards every quarantined entry and returns
// how many were removed.
func (o *Orchestrator) ClearQuarantine(ctx context.Context) (int, error) {
	n, err := o.store.ClearQuarantine(ctx)
	if err != nil {
		return 0, NewStoreError("clear quarantine", err)
	}
	o.logger.Info("quarantine cleared", "removed", n)
	return n, nil
}
