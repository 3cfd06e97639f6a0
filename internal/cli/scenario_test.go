package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const farmScenario = `
name: farm_sync
description: one farm syncs on reconnect
steps:
  - enqueue: {table: farms, action: insert, id: F1, payload: {name: North}}
  - online: true
assertions:
  - type: synced
    ids: [F1]
`

const failingScenario = `
name: wrong_ids
description: expects the wrong synced ids
online: true
steps:
  - enqueue: {table: farms, action: insert, id: F1}
  - sync: true
assertions:
  - type: synced
    ids: [F2]
`

func writeScenario(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestScenarioRun_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "farm_sync.yaml", farmScenario)

	out, err := execute(t, "scenario", "run", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ farm_sync (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "farm_sync.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), "hook sync_complete [F1]\n")

	out, err = execute(t, "scenario", "run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ farm_sync\n")
	assert.Contains(t, out, "Scenario Summary: 1 passed, 0 failed, 1 total")
}

func TestScenarioRun_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "farm_sync.yaml", farmScenario)
	require.NoError(t, writeGolden(filepath.Join(dir, "golden", "farm_sync.golden"), []byte("stale\n")))

	out, err := execute(t, "scenario", "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestScenarioRun_AssertionFailureJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "farm_sync.yaml", farmScenario)
	writeScenario(t, dir, "wrong_ids.yaml", failingScenario)

	out, err := execute(t, "--format", "json", "scenario", "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestScenarioRun_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "farm_sync.yaml", farmScenario)
	writeScenario(t, dir, "wrong_ids.yaml", failingScenario)

	out, err := execute(t, "scenario", "run", dir, "--filter", "farm_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
}

func TestScenarioRun_MissingDir(t *testing.T) {
	_, err := execute(t, "scenario", "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioRun_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := execute(t, "scenario", "run", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "auth.golden"), goldenFilePath(filepath.Join("scenarios", "auth.yaml")))
}
