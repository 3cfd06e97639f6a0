package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

// Call is one request received by FakeRemote.
type Call struct {
	Op      string // insert, exists, update, delete, list
	Table   string
	ID      string
	Payload record.Payload
}

// String renders the call on one line for traces.
func (c Call) String() string {
	if c.Payload == nil {
		if c.ID == "" {
			return c.Op + " " + c.Table
		}
		return fmt.Sprintf("%s %s %s", c.Op, c.Table, c.ID)
	}
	if c.ID == "" {
		return fmt.Sprintf("%s %s %s", c.Op, c.Table, CanonicalPayload(c.Payload))
	}
	return fmt.Sprintf("%s %s %s %s", c.Op, c.Table, c.ID, CanonicalPayload(c.Payload))
}

// FakeRemote is an in-memory remote.Store with scriptable failures.
// Server ids are assigned as "srv-1", "srv-2", ... in insert order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeRemote struct {
	mu      sync.Mutex
	rows    map[string]map[string]record.Payload
	nextID  int
	calls   []Call
	queued  map[string][]error
	failFn  func(Call) error
	onCall  func(Call)
	pingErr error
}

var (
	_ remote.Store  = (*FakeRemote)(nil)
	_ remote.Pinger = (*FakeRemote)(nil)
)

// NewFakeRemote creates an empty FakeRemote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		rows:   map[string]map[string]record.Payload{},
		queued: map[string][]error{},
	}
}

// Seed stores row under (table, id) as if it already existed remotely.
func (f *FakeRemote) Seed(table, id string, row record.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := row.Clone()
	r["id"] = id
	f.tableRows(table)[id] = r
}

// Row returns the stored row for (table, id).
func (f *FakeRemote) Row(table, id string) (record.Payload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[table][id]
	return r.Clone(), ok
}

// Tables returns the names of every table that has held a row, sorted.
func (f *FakeRemote) Tables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.rows))
	for t := range f.rows {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Calls returns every call received so far, failed ones included.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// FailNext queues errs to be returned, in order, by the next calls of op on table.
func (f *FakeRemote) FailNext(op, table string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + " " + table
	f.queued[key] = append(f.queued[key], errs...)
}

// FailWhen installs fn, consulted for every call after queued failures.
// A non-nil return fails the call.
func (f *FakeRemote) FailWhen(fn func(Call) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFn = fn
}

// OnCall installs fn, invoked (without the lock held) at the start of every call.
func (f *FakeRemote) OnCall(fn func(Call)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCall = fn
}

// SetPingError sets the error returned by Ping.
func (f *FakeRemote) SetPingError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Insert implements remote.Store.
func (f *FakeRemote) Insert(ctx context.Context, table string, payload record.Payload) (string, error) {
	if err := f.begin(Call{Op: "insert", Table: table, Payload: payload.Clone()}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	r := payload.Clone()
	r["id"] = id
	f.tableRows(table)[id] = r
	return id, nil
}

// Exists implements remote.Store.
func (f *FakeRemote) Exists(ctx context.Context, table, id string) (bool, error) {
	if err := f.begin(Call{Op: "exists", Table: table, ID: id}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[table][id]
	return ok, nil
}

// Update implements remote.Store.
func (f *FakeRemote) Update(ctx context.Context, table, id string, payload record.Payload) error {
	if err := f.begin(Call{Op: "update", Table: table, ID: id, Payload: payload.Clone()}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[table][id]
	if !ok {
		return remote.ErrNotFound
	}
	for k, v := range payload {
		r[k] = v
	}
	r["id"] = id
	return nil
}

// Delete implements remote.Store.
func (f *FakeRemote) Delete(ctx context.Context, table, id string) error {
	if err := f.begin(Call{Op: "delete", Table: table, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[table][id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.rows[table], id)
	return nil
}

// List implements remote.Store. Rows are returned ordered by id, with
// CreatedAt parsed from an RFC 3339 "created_at" field when present.
func (f *FakeRemote) List(ctx context.Context, table string) ([]remote.Row, error) {
	if err := f.begin(Call{Op: "list", Table: table}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.rows[table]))
	for id := range f.rows[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]remote.Row, 0, len(ids))
	for _, id := range ids {
		r := f.rows[table][id].Clone()
		row := remote.Row{ID: id, Data: r}
		if s, ok := r["created_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				row.CreatedAt = ts
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Ping implements remote.Pinger.
func (f *FakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// begin records c and returns any scripted failure for it.
func (f *FakeRemote) begin(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := c.Op + " " + c.Table
	if errs := f.queued[key]; len(errs) > 0 {
		f.queued[key] = errs[1:]
		return errs[0]
	}
	if f.failFn != nil {
		return f.failFn(c)
	}
	return nil
}

func (f *FakeRemote) tableRows(table string) map[string]record.Payload {
	rows, ok := f.rows[table]
	if !ok {
		rows = map[string]record.Payload{}
		f.rows[table] = rows
	}
	return rows
}
