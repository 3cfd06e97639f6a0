package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/fieldsync/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertPendingCount:
		n, err := h.store.CountPending(ctx, nil)
		if err != nil {
			return err
		}
		return expectCount(a.Type, *a.Count, n)

	case AssertQuarantineCount:
		n, err := h.store.CountQuarantined(ctx)
		if err != nil {
			return err
		}
		return expectCount(a.Type, *a.Count, n)

	case AssertQuarantined:
		return h.assertQuarantined(ctx, a)

	case AssertSynced:
		return assertSynced(h.result, a)

	case AssertRemoteRow:
		return h.assertRemoteRow(a)

	case AssertTraceContains:
		return assertTraceContains(h.result.Lines(), a.Line)

	case AssertTraceOrder:
		return assertTraceOrder(h.result.Lines(), a.Lines)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func expectCount(typ string, want, got int) error {
	if want != got {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%d", want),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func (h *Harness) assertQuarantined(ctx context.Context, a Assertion) error {
	entries, err := h.store.ListQuarantined(ctx)
	if err != nil {
		return err
	}

	for _, q := range entries {
		if q.RecordID != a.Record {
			continue
		}
		if a.Reason != "" && q.Reason != record.Reason(a.Reason) {
			return &AssertionError{
				Type:     AssertQuarantined,
				Expected: fmt.Sprintf("record %s quarantined with reason %s", a.Record, a.Reason),
				Actual:   fmt.Sprintf("reason %s", q.Reason),
			}
		}
		if a.RetryCount != nil && q.RetryCount != *a.RetryCount {
			return &AssertionError{
				Type:     AssertQuarantined,
				Expected: fmt.Sprintf("record %s quarantined with retry_count %d", a.Record, *a.RetryCount),
				Actual:   fmt.Sprintf("retry_count %d", q.RetryCount),
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertQuarantined,
		Expected: fmt.Sprintf("record %s quarantined", a.Record),
		Actual:   fmt.Sprintf("%d quarantined entries, none for %s", len(entries), a.Record),
	}
}

// assertSynced checks the ids passed to the most recent sync-completion hook.
func assertSynced(result *Result, a Assertion) error {
	if len(result.Synced) == 0 {
		return &AssertionError{
			Type:     AssertSynced,
			Expected: fmt.Sprint(a.IDs),
			Actual:   "sync completion never fired",
			Trace:    result.Lines(),
		}
	}

	last := result.Synced[len(result.Synced)-1]
	if len(last) == 0 && len(a.IDs) == 0 {
		return nil
	}
	if !reflect.DeepEqual(last, a.IDs) {
		return &AssertionError{
			Type:     AssertSynced,
			Expected: fmt.Sprint(a.IDs),
			Actual:   fmt.Sprint(last),
		}
	}
	return nil
}

// assertRemoteRow checks that the remote row contains every expected field.
func (h *Harness) assertRemoteRow(a Assertion) error {
	row, ok := h.remote.Row(a.Table, a.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertRemoteRow,
			Expected: fmt.Sprintf("row %s/%s", a.Table, a.ID),
			Actual:   "no such row",
		}
	}

	for field, want := range a.Expect {
		got, present := row[field]
		if !present || !sameValue(want, got) {
			return &AssertionError{
				Type:     AssertRemoteRow,
				Expected: fmt.Sprintf("%s/%s %s=%v", a.Table, a.ID, field, want),
				Actual:   fmt.Sprintf("%s=%v", field, got),
			}
		}
	}
	return nil
}

// sameValue compares two values after a JSON round trip, so that YAML ints
// and JSON float64s compare equal.
func sameValue(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// assertTraceContains checks that some trace line contains want.
func assertTraceContains(lines []string, want string) error {
	for _, line := range lines {
		if strings.Contains(line, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("a trace line containing %q", want),
		Actual:   "no match",
		Trace:    lines,
	}
}

// assertTraceOrder checks that each expected line matches a trace line
// strictly after the previous match.
func assertTraceOrder(lines, want []string) error {
	pos := 0
	for _, w := range want {
		found := false
		for pos < len(lines) {
			line := lines[pos]
			pos++
			if strings.Contains(line, w) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%q in order", want),
				Actual:   fmt.Sprintf("%q not found after previous match", w),
				Trace:    lines,
			}
		}
	}
	return nil
}
