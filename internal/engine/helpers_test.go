package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

var testEpoch = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	orch   *Orchestrator
	store  *store.Store
	path   string
	remote *testutil.FakeRemote
	synced [][]string
	auth   []error
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{store: s, path: path, remote: testutil.NewFakeRemote()}

	base := []Option{
		WithClock(NewClock()),
		WithIDGenerator(NewFixedGenerator("id")),
		WithNow(testutil.NewStepTime(testEpoch, time.Second).Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	o, err := New(context.Background(), s, h.remote, append(base, opts...)...)
	require.NoError(t, err)

	o.Hooks().OnSyncComplete(func(ids []string) { h.synced = append(h.synced, ids) })
	o.Hooks().OnAuthFailure(func(err error) { h.auth = append(h.auth, err) })
	h.orch = o
	return h
}

func (h *harness) enqueue(t *testing.T, table string, action record.Action, recordID string, payload record.Payload) record.QueueEntry {
	t.Helper()
	e, err := h.orch.Enqueue(context.Background(), Mutation{
		Table:    table,
		Action:   action,
		RecordID: recordID,
		Payload:  payload,
	})
	require.NoError(t, err)
	return e
}

func (h *harness) drain(t *testing.T) *PassResult {
	t.Helper()
	result, err := h.orch.DrainQueue(context.Background())
	require.NoError(t, err)
	return result
}

func (h *harness) pending(t *testing.T) []record.QueueEntry {
	t.Helper()
	entries, err := h.store.ListPending(context.Background())
	require.NoError(t, err)
	return entries
}

func (h *harness) quarantined(t *testing.T) []record.QuarantinedEntry {
	t.Helper()
	entries, err := h.store.ListQuarantined(context.Background())
	require.NoError(t, err)
	return entries
}

func (h *harness) callStrings() []string {
	calls := h.remote.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// failPendingDeletes makes every local removal of recordID's pending entry
// fail, so completing or quarantining it rolls back.
func (h *harness) failPendingDeletes(t *testing.T, recordID string) {
	t.Helper()
	db, err := sql.Open("sqlite3", h.path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TRIGGER fail_pending_delete BEFORE DELETE ON pending_queue
		WHEN OLD.record_id = '` + recordID + `'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)
}
