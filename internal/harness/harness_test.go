package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/auth_abort_preserves_queue.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Render(scenario.Name), second.Render(scenario.Name))
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_expectations
description: expectations that do not hold
online: true
steps:
  - enqueue: {table: farms, action: insert, id: F1, payload: {name: A}}
  - sync: true
assertions:
  - type: synced
    ids: [F2]
  - type: pending_count
    count: 5
  - type: remote_row
    table: farms
    id: srv-1
    expect: {name: B}
  - type: quarantined
    record: F1
  - type: trace_contains
    line: "hook auth_failure"
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 5)
}

func TestRun_RejectedMutationIsTraced(t *testing.T) {
	scenario := mustParse(t, `
name: rejected
description: an update without a record id is rejected
steps:
  - enqueue: {table: farms, action: update, payload: {name: A}}
assertions:
  - type: trace_contains
    line: "rejected update farms"
  - type: pending_count
    count: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
}

func TestRun_UnknownActionFailsStep(t *testing.T) {
	scenario := &Scenario{
		Name: "unknown_action",
		Steps: []Step{
			{Enqueue: &EnqueueStep{Table: "farms", Action: "upsert", ID: "F1"}},
		},
	}

	result, err := Run(scenario)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "step 0: enqueue farms")
	assert.Contains(t, err.Error(), `unknown action "upsert"`)
}

func TestRun_TierOverride(t *testing.T) {
	scenario := mustParse(t, `
name: tier_override
description: a table given a lower tier replays first
online: true
tiers:
  notes: 0
steps:
  - enqueue: {table: farms, action: insert, id: F1, payload: {name: A}}
  - enqueue: {table: notes, action: insert, id: N1, payload: {body: hi}}
  - sync: true
assertions:
  - type: synced
    ids: [N1, F1]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
}

func TestRun_MaxRetriesOverride(t *testing.T) {
	scenario := mustParse(t, `
name: one_retry
description: a retry bound of one quarantines on the first transient failure
online: true
max_retries: 1
steps:
  - enqueue: {table: farms, action: insert, id: F1, payload: {name: A}}
  - fail: {op: insert, table: farms, kind: other}
  - sync: true
assertions:
  - type: quarantined
    record: F1
    reason: max_retries
    retry_count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	assert.Contains(t, strings.Join(result.State, "\n"), `error="OTHER: scripted failure"`)
}

func TestRun_RetryWithoutQuarantinedEntry(t *testing.T) {
	scenario := mustParse(t, `
name: bad_retry
description: retrying a record that is not quarantined fails the run
steps:
  - retry: F1
assertions:
  - type: pending_count
    count: 0
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no quarantined entry for record "F1"`)
}

func TestAssertTraceOrder(t *testing.T) {
	lines := []string{"a one", "b two", "c three"}

	assert.NoError(t, assertTraceOrder(lines, []string{"one", "three"}))
	assert.Error(t, assertTraceOrder(lines, []string{"three", "one"}))
	assert.Error(t, assertTraceOrder(lines, []string{"four"}))
}

func TestSameValue_NumbersCompareAcrossDecoders(t *testing.T) {
	assert.True(t, sameValue(3, float64(3)))
	assert.True(t, sameValue("x", "x"))
	assert.False(t, sameValue("3", 3))
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}
