package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/record"
)

func cachedRow(table, id string, created int64) record.CachedEntry {
	return record.CachedEntry{
		Table:     table,
		ID:        id,
		Data:      record.Payload{"id": id},
		CreatedAt: time.Unix(created, 0).UTC(),
		FetchedAt: time.Unix(1000, 0).UTC(),
	}
}

func TestCache_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.PutCached(ctx, cachedRow("farms", "1", 5)))

	got, err := s.GetCached(ctx, "farms", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Data["id"])
	assert.True(t, time.Unix(5, 0).Equal(got.CreatedAt))
	assert.True(t, time.Unix(1000, 0).Equal(got.FetchedAt))

	require.NoError(t, s.DeleteCached(ctx, "farms", "1"))
	_, err = s.GetCached(ctx, "farms", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_ReplaceIsPerTable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.PutCached(ctx, cachedRow("farms", "old", 1)))
	require.NoError(t, s.PutCached(ctx, cachedRow("clusters", "c1", 1)))

	require.NoError(t, s.ReplaceCache(ctx, "farms", []record.CachedEntry{
		cachedRow("", "new1", 2),
		cachedRow("", "new2", 3),
	}))

	farms, err := s.ListCached(ctx, "farms")
	require.NoError(t, err)
	require.Len(t, farms, 2)
	assert.Equal(t, "new1", farms[0].ID)
	assert.Equal(t, "farms", farms[0].Table)

	clusters, err := s.ListCached(ctx, "clusters")
	require.NoError(t, err)
	assert.Len(t, clusters, 1, "other tables are untouched")
}

func TestCache_ReplaceRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.PutCached(ctx, cachedRow("farms", "keep", 1)))

	// A payload that cannot be JSON-encoded fails midway through the swap.
	bad := cachedRow("", "bad", 2)
	bad.Data = record.Payload{"ch": make(chan int)}
	err := s.ReplaceCache(ctx, "farms", []record.CachedEntry{cachedRow("", "ok", 2), bad})
	require.Error(t, err)

	farms, err := s.ListCached(ctx, "farms")
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, "keep", farms[0].ID)
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.PutCached(ctx, cachedRow("farms", "1", 1)))
	require.NoError(t, s.ClearCache(ctx))

	rows, err := s.ListCached(ctx, "farms")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
