package overlay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
)

// Reconciler maintains the optimistic overlay.
type Reconciler struct {
	store  *store.Store
	online func() bool
	now    func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNow overrides the clock used for CreatedAt.
func WithNow(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a Reconciler. online reports current connectivity and
// decides CreatedOffline; nil means always offline.
func NewReconciler(s *store.Store, online func() bool, opts ...ReconcilerOption) *Reconciler {
	if online == nil {
		online = func() bool { return false }
	}
	r := &Reconciler{
		store:  s,
		online: online,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordOptimistic stores data as the optimistic state of the record
// data["id"] in table, replacing any earlier overlay row for it. The row is
// stamped as created now.
func (r *Reconciler) RecordOptimistic(ctx context.Context, table string, data record.Payload) (record.OverlayEntry, error) {
	entry, err := r.put(ctx, table, data, r.now().UTC())
	if err != nil {
		return record.OverlayEntry{}, fmt.Errorf("record optimistic: %w", err)
	}
	return entry, nil
}

// MergeOptimistic records a partial update: data is laid over the current
// overlay row for the record, or over its cached snapshot when there is no
// overlay row, so that fields the update does not touch stay visible. The
// base row's CreatedAt is kept, so an edit does not move the record in a
// combined read.
func (r *Reconciler) MergeOptimistic(ctx context.Context, table string, data record.Payload) (record.OverlayEntry, error) {
	table = record.NormalizeTable(table)
	id := data.ID()

	var base record.Payload
	createdAt := r.now().UTC()
	if o, err := r.store.GetOverlay(ctx, table, id); err == nil {
		base, createdAt = o.Data, o.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return record.OverlayEntry{}, fmt.Errorf("merge optimistic: %w", err)
	} else if c, err := r.store.GetCached(ctx, table, id); err == nil {
		base, createdAt = c.Data, c.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return record.OverlayEntry{}, fmt.Errorf("merge optimistic: %w", err)
	}

	merged := base.Clone()
	for k, v := range data {
		merged[k] = v
	}
	entry, err := r.put(ctx, table, merged, createdAt)
	if err != nil {
		return record.OverlayEntry{}, fmt.Errorf("merge optimistic: %w", err)
	}
	return entry, nil
}

func (r *Reconciler) put(ctx context.Context, table string, data record.Payload, createdAt time.Time) (record.OverlayEntry, error) {
	id := data.ID()
	if id == "" {
		return record.OverlayEntry{}, fmt.Errorf("data has no id")
	}
	entry := record.OverlayEntry{
		Table:          record.NormalizeTable(table),
		ID:             id,
		Data:           data.Clone(),
		IsOptimistic:   true,
		CreatedOffline: !r.online(),
		CreatedAt:      createdAt,
	}
	if err := r.store.PutOverlay(ctx, entry); err != nil {
		return record.OverlayEntry{}, err
	}
	return entry, nil
}

// Clear removes the overlay row for a confirmed or stale record.
func (r *Reconciler) Clear(ctx context.Context, table, id string) error {
	if err := r.store.DeleteOverlay(ctx, record.NormalizeTable(table), id); err != nil {
		return fmt.Errorf("clear overlay: %w", err)
	}
	return nil
}

// ListByClientIDs returns overlay rows in any table whose id is in ids.
func (r *Reconciler) ListByClientIDs(ctx context.Context, ids []string) ([]record.OverlayEntry, error) {
	rows, err := r.store.ListOverlayByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list overlay by client ids: %w", err)
	}
	return rows, nil
}

// RemoveByClientIDs purges overlay rows whose id is in ids. Collaborators call
// it with the ids reported by the sync-completion hook before re-fetching, so
// an optimistic row and its freshly fetched server row never show together.
func (r *Reconciler) RemoveByClientIDs(ctx context.Context, ids []string) (int, error) {
	n, err := r.store.DeleteOverlayByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("remove overlay by client ids: %w", err)
	}
	return n, nil
}
