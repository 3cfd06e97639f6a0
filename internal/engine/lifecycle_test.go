package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/record"
)

func TestSetOnline_OfflineToOnlineDrains(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	assert.False(t, h.orch.Online())

	result, err := h.orch.SetOnline(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Synced)
	assert.True(t, h.orch.Online())
}

func TestSetOnline_NoTransitionNoPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithOnline(true))
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	result, err := h.orch.SetOnline(ctx, true)
	require.NoError(t, err)
	assert.Nil(t, result, "online -> online is not a transition")
	assert.Empty(t, h.remote.Calls())
}

func TestSetOnline_GoingOfflineDoesNotDrain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithOnline(true))
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	result, err := h.orch.SetOnline(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.False(t, h.orch.Online())
	assert.Empty(t, h.remote.Calls())
	assert.Len(t, h.pending(t), 1)
}

func TestSetOnline_RapidTogglesSyncOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	for i := 0; i < 3; i++ {
		_, err := h.orch.SetOnline(ctx, true)
		require.NoError(t, err)
		_, err = h.orch.SetOnline(ctx, false)
		require.NoError(t, err)
	}

	assert.Len(t, h.remote.Calls(), 1, "entry replayed exactly once")
	assert.Empty(t, h.pending(t))
}

func TestTriggerSync_RunsPass(t *testing.T) {
	h := newHarness(t, WithOnline(true))
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	result, err := h.orch.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
}

func TestEnqueue_NeverTriggersPass(t *testing.T) {
	h := newHarness(t, WithOnline(true))
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	assert.Empty(t, h.remote.Calls())
	assert.Len(t, h.pending(t), 1)
}
