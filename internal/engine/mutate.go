package engine

import (
	"context"
	"fmt"

	"github.com/roach88/fieldsync/internal/record"
)

// Mutation is a collaborator's request to change one record.
//
// RecordID identifies the record. When empty, Payload["id"] is used; when
// both are empty on an insert, a client id is generated.
type Mutation struct {
	Table    string         `json:"table"`
	Action   record.Action  `json:"action"`
	RecordID string         `json:"record_id,omitempty"`
	Payload  record.Payload `json:"payload"`
}

// Enqueue durably queues m and, for inserts and updates, records the payload
// in the optimistic overlay so it is visible to CombinedRead at once.
//
// Enqueue never triggers a pass; only connectivity transitions and manual
// triggers do.
func (o *Orchestrator) Enqueue(ctx context.Context, m Mutation) (record.QueueEntry, error) {
	recordID := m.RecordID
	if recordID == "" {
		recordID = m.Payload.ID()
	}
	if recordID == "" {
		if m.Action != record.ActionInsert {
			return record.QueueEntry{}, NewInvalidMutationError(m.Table,
				fmt.Errorf("%s requires a record id", m.Action))
		}
		recordID = o.ids.Generate()
	}

	entry, err := record.NewQueueEntry(o.ids.Generate(), recordID, m.Table, m.Action, m.Payload, o.clock.Next())
	if err != nil {
		return record.QueueEntry{}, NewInvalidMutationError(m.Table, err)
	}

	if err := o.store.PutPending(ctx, entry); err != nil {
		return record.QueueEntry{}, NewStoreError("enqueue", err)
	}

	if entry.Action != record.ActionDelete {
		write := o.reconciler.RecordOptimistic
		if entry.Action == record.ActionUpdate {
			write = o.reconciler.MergeOptimistic
		}
		if _, err := write(ctx, entry.Table, entry.Payload); err != nil {
			// The mutation is queued; a missing overlay row only delays visibility.
			o.logger.Warn("optimistic overlay write failed", "entry_id", entry.EntryID, "error", err)
		}
	}

	o.logger.Debug("mutation enqueued",
		"entry_id", entry.EntryID, "record_id", entry.RecordID, "table", entry.Table, "action", entry.Action)
	return entry, nil
}
