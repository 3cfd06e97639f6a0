package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fieldsync/internal/record"
)

func TestIDMapping_RewritesForeignKeys(t *testing.T) {
	m := NewIDMapping()
	m.Record("F1", "srv-1")

	in := record.Payload{"id": "C1", "farm_id": "F1", "owner_id": "U9", "name": "F1", "count_id": 3}
	out := m.Rewrite(in)

	assert.Equal(t, "srv-1", out["farm_id"])
	assert.Equal(t, "U9", out["owner_id"], "unmapped ids are kept")
	assert.Equal(t, "F1", out["name"], "non *_id fields are never rewritten")
	assert.Equal(t, "C1", out["id"])
	assert.Equal(t, 3, out["count_id"])
	assert.Equal(t, "F1", in["farm_id"], "input must not be mutated")
}

func TestIDMapping_EmptyRewriteCopies(t *testing.T) {
	in := record.Payload{"farm_id": "F1"}
	out := NewIDMapping().Rewrite(in)
	out["farm_id"] = "x"
	assert.Equal(t, "F1", in["farm_id"])
}

func TestIDMapping_SyncedInMarkOrder(t *testing.T) {
	m := NewIDMapping()
	assert.NotNil(t, m.Synced())
	assert.Empty(t, m.Synced())

	m.Record("F1", "srv-1")
	m.Record("C1", "srv-2")
	m.Record("F1", "srv-1")
	assert.Empty(t, m.Synced(), "recording alone does not report a sync")

	m.MarkSynced("F1")
	m.MarkSynced("C1")
	m.MarkSynced("F1")
	m.MarkSynced("unmapped")

	assert.Equal(t, []string{"F1", "C1"}, m.Synced())
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "srv-2", m.Resolve("C1"))
	assert.Equal(t, "X", m.Resolve("X"))
}

func TestIDMapping_Has(t *testing.T) {
	m := NewIDMapping()
	assert.False(t, m.Has("F1"))

	m.Record("F1", "srv-1")
	assert.True(t, m.Has("F1"))
	assert.Equal(t, "srv-1", m.Resolve("F1"))
}
