package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

func quarantineOne(t *testing.T, h *harness, recordID string) record.QueueEntry {
	t.Helper()
	e := h.enqueue(t, "farms", record.ActionInsert, recordID, record.Payload{"name": recordID})
	h.remote.FailNext("insert", "farms", remote.NewConflictError(409, "23505", "duplicate"))
	r := h.drain(t)
	require.Equal(t, 1, r.Quarantined)
	return e
}

func TestRetryQuarantined_RequeuesAndDrains(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithOnline(true))
	e := quarantineOne(t, h, "F1")

	result, err := h.orch.RetryQuarantined(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Empty(t, h.quarantined(t))
	assert.Empty(t, h.pending(t))
}

func TestRetryQuarantined_ResetsRetryCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "n"})

	h.orch.online.Store(true)
	h.remote.FailNext("insert", "farms",
		remote.NewTransientError(503, "down", nil),
		remote.NewConflictError(409, "23505", "duplicate"),
	)
	h.drain(t)
	h.drain(t)
	require.Len(t, h.quarantined(t), 1)
	h.orch.online.Store(false)

	_, err := h.orch.RetryQuarantined(ctx, e.EntryID)
	require.NoError(t, err)

	pending := h.pending(t)
	require.Len(t, pending, 1, "offline: restored but not replayed")
	assert.Zero(t, pending[0].RetryCount)
	assert.Empty(t, pending[0].LastError)
	assert.Nil(t, pending[0].LastErrorAt)
	assert.Equal(t, e.Payload, pending[0].Payload)
}

func TestRetryQuarantined_UnknownID(t *testing.T) {
	h := newHarness(t, WithOnline(true))

	_, err := h.orch.RetryQuarantined(context.Background(), "missing")
	assert.True(t, IsNotFoundError(err))
}

func TestDeleteQuarantined(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithOnline(true))
	e := quarantineOne(t, h, "F1")

	require.NoError(t, h.orch.DeleteQuarantined(ctx, e.EntryID))
	assert.Empty(t, h.quarantined(t))

	err := h.orch.DeleteQuarantined(ctx, e.EntryID)
	assert.True(t, IsNotFoundError(err))
}

func TestClearQuarantine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithOnline(true))
	quarantineOne(t, h, "F1")
	quarantineOne(t, h, "F2")

	listed, err := h.orch.ListQuarantined(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	n, err := h.orch.ClearQuarantine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := h.orch.QuarantineCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
