package engine

import (
	"context"

	"github.com/roach88/fieldsync/internal/overlay"
	"github.com/roach88/fieldsync/internal/record"
)

// Status is a point-in-time snapshot for collaborators.
type Status struct {
	Online      bool `json:"online"`
	Syncing     bool `json:"syncing"`
	Pending     int  `json:"pending"`
	Quarantined int  `json:"quarantined"`
}

// PendingCount counts pending entries in the user-facing table allow-list.
func (o *Orchestrator) PendingCount(ctx context.Context) (int, error) {
	n, err := o.store.CountPending(ctx, o.pendingTables)
	if err != nil {
		return 0, NewStoreError("count pending", err)
	}
	return n, nil
}

// QuarantineCount counts quarantined entries.
func (o *Orchestrator) QuarantineCount(ctx context.Context) (int, error) {
	n, err := o.store.CountQuarantined(ctx)
	if err != nil {
		return 0, NewStoreError("count quarantined", err)
	}
	return n, nil
}

// HasPendingChanges reports whether recordID in table has a queued mutation.
func (o *Orchestrator) HasPendingChanges(ctx context.Context, recordID, table string) (bool, error) {
	ok, err := o.store.HasPending(ctx, recordID, record.NormalizeTable(table))
	if err != nil {
		return false, NewStoreError("has pending", err)
	}
	return ok, nil
}

// CombinedRead returns cached and optimistic rows of table, newest first.
func (o *Orchestrator) CombinedRead(ctx context.Context, table string) ([]overlay.Item, error) {
	return o.view.CombinedRead(ctx, table)
}

// RefreshCache re-fetches table from the remote store into the read cache.
func (o *Orchestrator) RefreshCache(ctx context.Context, table string) (int, error) {
	return o.view.Refresh(ctx, table)
}

// Status returns counts plus connectivity and pass state.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	pending, err := o.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}
	quarantined, err := o.QuarantineCount(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:      o.Online(),
		Syncing:     o.Running(),
		Pending:     pending,
		Quarantined: quarantined,
	}, nil
}
