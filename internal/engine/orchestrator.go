package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fieldsync/internal/overlay"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
)

// DefaultPendingTables is the allow-list PendingCount reports on. Lifecycle
// event rows are queued and synced but not user-facing.
var DefaultPendingTables = []string{"farms", "clusters"}

// PassResult summarizes one DrainQueue call.
type PassResult struct {
	// Skipped is set when another pass was already running; nothing else is set.
	Skipped bool `json:"skipped,omitempty"`

	// Offline is set when the pass aborted early for lack of connectivity.
	Offline bool `json:"offline,omitempty"`

	Attempted   int `json:"attempted"`
	Synced      int `json:"synced"`
	Requeued    int `json:"requeued"`
	Quarantined int `json:"quarantined"`

	// StoreErrors counts local-store writes that failed. The affected entry
	// keeps its prior durable state.
	StoreErrors int `json:"store_errors,omitempty"`

	// SyncedIDs are the client ids remapped to server ids whose entries left
	// the pending queue, in pass order.
	SyncedIDs []string `json:"synced_ids"`

	// AuthError is the error that aborted the pass, if any.
	AuthError error `json:"-"`

	Duration time.Duration `json:"duration_ns"`
}

// AuthAborted reports whether the pass stopped on an authentication failure.
func (r *PassResult) AuthAborted() bool {
	return r.AuthError != nil
}

// Orchestrator is the single-flight drain loop over the pending queue.
//
// At most one pass runs at a time, process-wide, enforced by an in-process
// compare-and-swap flag. A concurrent DrainQueue returns immediately with
// PassResult.Skipped set. Entries within a pass are replayed strictly
// sequentially so that a child entry observes its parent's just-assigned
// server id.
//
// Thread-safety model:
//   - DrainQueue, SetOnline, RetryQuarantined: safe from any goroutine
//   - Enqueue and the query surface: safe from any goroutine, may interleave
//     with a running pass
//
// INVARIANTS:
//   - entries of a lower tier are replayed before entries of a higher tier
//   - a failed store write never removes an entry from the pending queue
//   - an authentication failure leaves the failing entry and every entry
//     after it untouched
type Orchestrator struct {
	store      *store.Store
	remote     remote.Store
	hooks      *Hooks
	reconciler *overlay.Reconciler
	view       *overlay.View

	policy        Policy
	tiers         Tiers
	pendingTables []string
	clock         *Clock
	ids           IDGenerator
	now           func() time.Time
	logger        *slog.Logger
	recorder      Recorder
	tracer        trace.Tracer

	running atomic.Bool
	online  atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHooks injects the callback subscription object. Default: NewHooks().
func WithHooks(h *Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// WithPolicy sets the retry/quarantine policy. Default: DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithTiers sets the table dependency tiers. Default: DefaultTiers().
func WithTiers(t Tiers) Option {
	return func(o *Orchestrator) {
		o.tiers = t
	}
}

// WithPendingTables sets the allow-list PendingCount reports on.
func WithPendingTables(tables ...string) Option {
	return func(o *Orchestrator) {
		o.pendingTables = append([]string(nil), tables...)
	}
}

// WithClock sets the enqueue clock. Default: a wall clock seeded from the store.
func WithClock(c *Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithIDGenerator sets the generator for entry ids and client record ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		o.ids = g
	}
}

// WithNow overrides the wall clock used for error and overlay timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithOnline sets the initial connectivity state. Default: offline until a
// probe or collaborator reports otherwise.
func WithOnline(online bool) Option {
	return func(o *Orchestrator) {
		o.online.Store(online)
	}
}

// New creates an Orchestrator over the local store s and remote store rs.
//
// Unless WithClock is given, the enqueue clock is seeded from the highest
// enqueuedAt already on disk so that entries created after a restart never
// sort before entries created before it.
func New(ctx context.Context, s *store.Store, rs remote.Store, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:         s,
		remote:        rs,
		hooks:         NewHooks(),
		policy:        DefaultPolicy(),
		tiers:         DefaultTiers(),
		pendingTables: append([]string(nil), DefaultPendingTables...),
		ids:           UUIDv7Generator{},
		now:           time.Now,
		logger:        slog.Default(),
		recorder:      noopRecorder{},
		tracer:        otel.Tracer("github.com/roach88/fieldsync/internal/engine"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.clock == nil {
		max, err := s.MaxEnqueuedAt(ctx)
		if err != nil {
			return nil, NewStoreError("seed clock", err)
		}
		o.clock = NewWallClock(max)
	}

	o.reconciler = overlay.NewReconciler(s, o.Online, overlay.WithNow(o.now))
	o.view = overlay.NewView(s, rs)
	return o, nil
}

// Hooks returns the callback subscription object.
func (o *Orchestrator) Hooks() *Hooks {
	return o.hooks
}

// Reconciler returns the optimistic overlay reconciler.
func (o *Orchestrator) Reconciler() *overlay.Reconciler {
	return o.reconciler
}

// Running reports whether a pass is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// DrainQueue runs one pass over the pending queue.
//
// The pass is detached from ctx cancellation: once started it runs to
// completion or to an authentication abort. Transport timeouts surface as
// Transient failures and go through the normal retry path.
//
// The returned error is non-nil only when the pass could not read the
// pending queue at all; per-entry failures are reported in PassResult.
func (o *Orchestrator) DrainQueue(ctx context.Context) (*PassResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Debug("drain skipped: pass already running")
		result := &PassResult{Skipped: true, SyncedIDs: []string{}}
		o.recorder.PassFinished(result)
		return result, nil
	}

	result, ids, err := o.runPass(context.WithoutCancel(ctx))
	o.running.Store(false)
	o.recorder.PassFinished(result)

	if err != nil || result.Offline || ids == nil {
		return result, err
	}
	if result.AuthError != nil {
		o.hooks.fireAuthFailure(result.AuthError)
	}
	o.hooks.fireSyncComplete(ids.Synced())
	return result, nil
}

// runPass returns a nil mapping when the pass ended before replaying
// anything (offline, empty queue, or unreadable queue).
func (o *Orchestrator) runPass(ctx context.Context) (*PassResult, *IDMapping, error) {
	start := time.Now()
	result := &PassResult{SyncedIDs: []string{}}

	ctx, span := o.tracer.Start(ctx, "sync.drain")
	defer func() {
		result.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("sync.attempted", result.Attempted),
			attribute.Int("sync.synced", result.Synced),
			attribute.Int("sync.quarantined", result.Quarantined),
			attribute.Bool("sync.auth_aborted", result.AuthAborted()),
		)
		span.End()
	}()

	if !o.online.Load() {
		o.logger.Debug("drain aborted: offline")
		result.Offline = true
		return result, nil, nil
	}

	entries, err := o.store.ListPending(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, nil, NewStoreError("list pending", err)
	}
	if len(entries) == 0 {
		return result, nil, nil
	}

	ordered := Order(entries, o.tiers)
	ids := NewIDMapping()
	o.logger.Info("sync pass starting", "pending", len(ordered))

	for _, e := range ordered {
		result.Attempted++
		if abort := o.replayEntry(ctx, e, ids, result); abort {
			break
		}
	}

	result.SyncedIDs = ids.Synced()
	o.logger.Info("sync pass finished",
		"attempted", result.Attempted,
		"synced", result.Synced,
		"requeued", result.Requeued,
		"quarantined", result.Quarantined,
		"store_errors", result.StoreErrors,
		"auth_aborted", result.AuthAborted(),
	)
	return result, ids, nil
}

// replayEntry replays one entry and routes its outcome. Returns true if the
// pass must stop.
func (o *Orchestrator) replayEntry(ctx context.Context, e record.QueueEntry, ids *IDMapping, result *PassResult) bool {
	ctx, span := o.tracer.Start(ctx, "sync.replay", trace.WithAttributes(
		attribute.String("sync.entry_id", e.EntryID),
		attribute.String("sync.table", e.Table),
		attribute.String("sync.action", string(e.Action)),
	))
	defer span.End()

	mappedBefore := ids.Has(e.RecordID)
	err := o.dispatch(ctx, e, ids)
	if err == nil {
		clearOverlay := e.Action == record.ActionInsert || e.Action == record.ActionUpdate
		if err := o.store.Complete(ctx, e, clearOverlay); err != nil {
			o.storeFailure(e, "complete entry", err, result)
			return false
		}
		// The entry is off the queue, so its new server id can be reported.
		if !mappedBefore && ids.Has(e.RecordID) {
			ids.MarkSynced(e.RecordID)
		}
		result.Synced++
		o.recorder.EntryFinished(e.Table, string(e.Action), "synced")
		o.logger.Debug("entry synced", "entry_id", e.EntryID, "table", e.Table, "action", e.Action)
		return false
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	class := Classify(err)
	d := o.policy.Decide(e, class, err, o.now().UTC())

	switch d.Outcome {
	case OutcomeAbort:
		result.AuthError = err
		o.recorder.EntryFinished(e.Table, string(e.Action), "aborted")
		o.logger.Warn("sync pass aborted: authentication failure",
			"entry_id", e.EntryID, "table", e.Table, "error", err)
		return true

	case OutcomeQuarantine:
		if err := o.store.Quarantine(ctx, *d.Quarantined); err != nil {
			o.storeFailure(e, "quarantine entry", err, result)
			return false
		}
		result.Quarantined++
		o.recorder.EntryFinished(e.Table, string(e.Action), "quarantined")
		o.logger.Warn("entry quarantined",
			"entry_id", e.EntryID, "table", e.Table, "reason", d.Quarantined.Reason,
			"retry_count", d.Quarantined.RetryCount, "error", err)

	case OutcomeRequeue:
		if err := o.store.PutPending(ctx, d.Entry); err != nil {
			o.storeFailure(e, "requeue entry", err, result)
			return false
		}
		result.Requeued++
		o.recorder.EntryFinished(e.Table, string(e.Action), "requeued")
		o.logger.Info("entry requeued",
			"entry_id", e.EntryID, "table", e.Table, "retry_count", d.Entry.RetryCount, "class", class, "error", err)
	}
	return false
}

func (o *Orchestrator) storeFailure(e record.QueueEntry, op string, err error, result *PassResult) {
	result.StoreErrors++
	o.recorder.EntryFinished(e.Table, string(e.Action), "store_error")
	o.logger.Error("local store write failed", "op", op, "entry_id", e.EntryID, "table", e.Table, "error", err)
}

// dispatch performs the remote call(s) for one entry.
func (o *Orchestrator) dispatch(ctx context.Context, e record.QueueEntry, ids *IDMapping) error {
	payload := ids.Rewrite(e.Payload)
	target := ids.Resolve(e.RecordID)

	switch e.Action {
	case record.ActionInsert:
		return o.insert(ctx, e, payload, ids)

	case record.ActionUpdate:
		exists, err := o.remote.Exists(ctx, e.Table, target)
		if err != nil {
			return err
		}
		if !exists {
			o.logger.Debug("update target missing remotely, inserting instead",
				"entry_id", e.EntryID, "table", e.Table, "record_id", e.RecordID)
			return o.insert(ctx, e, payload, ids)
		}
		delete(payload, "id")
		err = o.remote.Update(ctx, e.Table, target, payload)
		if errors.Is(err, remote.ErrNotFound) {
			// Deleted between the existence check and the update.
			return o.insert(ctx, e, payload, ids)
		}
		return err

	case record.ActionDelete:
		err := o.remote.Delete(ctx, e.Table, target)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	}
	return &remote.Error{Kind: remote.KindOther, Message: fmt.Sprintf("unknown action %q", e.Action)}
}

func (o *Orchestrator) insert(ctx context.Context, e record.QueueEntry, payload record.Payload, ids *IDMapping) error {
	delete(payload, "id")
	serverID, err := o.remote.Insert(ctx, e.Table, payload)
	if err != nil {
		return err
	}
	ids.Record(e.RecordID, serverID)
	return nil
}
