package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

// Scenario defines one offline-sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the initial connectivity state.
	Online bool `yaml:"online,omitempty"`

	// MaxRetries overrides the retry bound when non-zero.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Tiers adds or overrides table dependency tiers.
	Tiers map[string]int `yaml:"tiers,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step holds exactly one action.
type Step struct {
	Enqueue *EnqueueStep `yaml:"enqueue,omitempty"`
	Seed    *SeedStep    `yaml:"seed,omitempty"`
	Fail    *FailStep    `yaml:"fail,omitempty"`
	Online  *bool        `yaml:"online,omitempty"`
	Sync    bool         `yaml:"sync,omitempty"`
	Retry   string       `yaml:"retry,omitempty"`
	Refresh string       `yaml:"refresh,omitempty"`
}

// EnqueueStep submits one mutation.
type EnqueueStep struct {
	Table   string         `yaml:"table"`
	Action  string         `yaml:"action"`
	ID      string         `yaml:"id,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// SeedStep places a row in the remote store before it is touched.
type SeedStep struct {
	Table string         `yaml:"table"`
	ID    string         `yaml:"id"`
	Data  map[string]any `yaml:"data,omitempty"`
}

// FailStep scripts the next remote calls of op on table to fail.
type FailStep struct {
	Op      string `yaml:"op"`
	Table   string `yaml:"table"`
	Kind    string `yaml:"kind"` // auth | conflict | transient | other
	Status  int    `yaml:"status,omitempty"`
	Code    string `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`
	Times   int    `yaml:"times,omitempty"` // default 1
}

// Assertion validates the final trace or state.
type Assertion struct {
	// Type selects the assertion (see package documentation).
	Type string `yaml:"type"`

	// Count is used by pending_count and quarantine_count.
	Count *int `yaml:"count,omitempty"`

	// Record, Reason and RetryCount are used by quarantined.
	Record     string `yaml:"record,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
	RetryCount *int   `yaml:"retry_count,omitempty"`

	// IDs is used by synced.
	IDs []string `yaml:"ids,omitempty"`

	// Table, ID and Expect are used by remote_row.
	Table  string         `yaml:"table,omitempty"`
	ID     string         `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Line is used by trace_contains; Lines by trace_order.
	Line  string   `yaml:"line,omitempty"`
	Lines []string `yaml:"lines,omitempty"`
}

// Assertion type constants.
const (
	AssertPendingCount    = "pending_count"
	AssertQuarantineCount = "quarantine_count"
	AssertQuarantined     = "quarantined"
	AssertSynced          = "synced"
	AssertRemoteRow       = "remote_row"
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
)

var failKinds = map[string]remote.Kind{
	"auth":      remote.KindAuth,
	"conflict":  remote.KindConflict,
	"transient": remote.KindTransient,
	"other":     remote.KindOther,
}

var failOps = map[string]bool{
	"insert": true, "exists": true, "update": true, "delete": true, "list": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	n := 0
	for _, set := range []bool{
		st.Enqueue != nil, st.Seed != nil, st.Fail != nil, st.Online != nil,
		st.Sync, st.Retry != "", st.Refresh != "",
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, n)
	}

	switch {
	case st.Enqueue != nil:
		if st.Enqueue.Table == "" {
			return fmt.Errorf("steps[%d].enqueue: table is required", index)
		}
		if _, err := record.ParseAction(st.Enqueue.Action); err != nil {
			return fmt.Errorf("steps[%d].enqueue: %w", index, err)
		}
	case st.Seed != nil:
		if st.Seed.Table == "" || st.Seed.ID == "" {
			return fmt.Errorf("steps[%d].seed: table and id are required", index)
		}
	case st.Fail != nil:
		if !failOps[st.Fail.Op] {
			return fmt.Errorf("steps[%d].fail: unknown op %q", index, st.Fail.Op)
		}
		if st.Fail.Table == "" {
			return fmt.Errorf("steps[%d].fail: table is required", index)
		}
		if _, ok := failKinds[st.Fail.Kind]; !ok {
			return fmt.Errorf("steps[%d].fail: unknown kind %q", index, st.Fail.Kind)
		}
		if st.Fail.Times < 0 {
			return fmt.Errorf("steps[%d].fail: times must be non-negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPendingCount, AssertQuarantineCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertQuarantined:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for quarantined", index)
		}
		if a.Reason != "" && a.Reason != string(record.ReasonConflict) && a.Reason != string(record.ReasonMaxRetries) {
			return fmt.Errorf("assertions[%d]: unknown reason %q", index, a.Reason)
		}
	case AssertSynced:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for synced (use [] for none)", index)
		}
	case AssertRemoteRow:
		if a.Table == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: table and id are required for remote_row", index)
		}
	case AssertTraceContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
