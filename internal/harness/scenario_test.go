package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/farm_then_cluster.yaml")
	require.NoError(t, err)

	assert.Equal(t, "farm_then_cluster", s.Name)
	require.Len(t, s.Steps, 3)
	require.NotNil(t, s.Steps[0].Enqueue)
	assert.Equal(t, "farms", s.Steps[0].Enqueue.Table)
	assert.Equal(t, "North Field", s.Steps[0].Enqueue.Payload["name"])
	require.NotNil(t, s.Steps[2].Online)
	assert.True(t, *s.Steps[2].Online)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: misspelled key
stepz: []
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Rejects(t *testing.T) {
	const header = "name: n\ndescription: d\n"
	const okAssert = "assertions:\n  - type: pending_count\n    count: 0\n"

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no name", "description: d\nsteps:\n  - sync: true\n" + okAssert, "name is required"},
		{"no description", "name: n\nsteps:\n  - sync: true\n" + okAssert, "description is required"},
		{"no steps", header + okAssert, "steps list is required"},
		{"no assertions", header + "steps:\n  - sync: true\n", "assertions list is required"},
		{"two actions", header + "steps:\n  - sync: true\n    refresh: farms\n" + okAssert, "exactly one action"},
		{"empty step", header + "steps:\n  - {}\n" + okAssert, "exactly one action"},
		{"bad action", header + "steps:\n  - enqueue: {table: farms, action: upsert}\n" + okAssert, "unknown action"},
		{"enqueue no table", header + "steps:\n  - enqueue: {action: insert}\n" + okAssert, "table is required"},
		{"bad fail op", header + "steps:\n  - fail: {op: patch, table: farms, kind: auth}\n" + okAssert, "unknown op"},
		{"bad fail kind", header + "steps:\n  - fail: {op: insert, table: farms, kind: fatal}\n" + okAssert, "unknown kind"},
		{"seed no id", header + "steps:\n  - seed: {table: farms}\n" + okAssert, "table and id are required"},
		{"unknown assertion", header + "steps:\n  - sync: true\nassertions:\n  - type: magic\n", "unknown assertion type"},
		{"count missing", header + "steps:\n  - sync: true\nassertions:\n  - type: pending_count\n", "non-negative count"},
		{"bad reason", header + "steps:\n  - sync: true\nassertions:\n  - type: quarantined\n    record: F1\n    reason: tired\n", "unknown reason"},
		{"synced without ids", header + "steps:\n  - sync: true\nassertions:\n  - type: synced\n", "ids is required"},
		{"trace order empty", header + "steps:\n  - sync: true\nassertions:\n  - type: trace_order\n", "lines list is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_SyncedAcceptsEmptyList(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: n
description: d
steps:
  - sync: true
assertions:
  - type: synced
    ids: []
`))
	require.NoError(t, err)
	assert.NotNil(t, s.Assertions[0].IDs)
	assert.Empty(t, s.Assertions[0].IDs)
}
