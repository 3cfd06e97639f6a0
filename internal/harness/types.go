package harness

import (
	"strings"
)

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	// Type is the event category: enqueue, seed, script, network, sync,
	// retry, refresh, call, entry, pass, hook.
	Type string `json:"type"`

	// Detail is the rest of the line.
	Detail string `json:"detail"`
}

// String renders the event as "type detail".
func (e TraceEvent) String() string {
	if e.Detail == "" {
		return e.Type
	}
	return e.Type + " " + e.Detail
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event in order.
	Trace []TraceEvent `json:"trace"`

	// State holds the final store and remote contents, one line per row.
	State []string `json:"state"`

	// Errors holds assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Synced records the ids of every sync-completion hook call.
	Synced [][]string `json:"-"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		State:  []string{},
		Errors: []string{},
	}
}

// AddError records an assertion failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(typ, detail string) {
	r.Trace = append(r.Trace, TraceEvent{Type: typ, Detail: detail})
}

// Lines returns the trace as strings.
func (r *Result) Lines() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.String()
	}
	return out
}

// Render returns the golden-file form of the trace and final state.
func (r *Result) Render(name string) []byte {
	var b strings.Builder
	b.WriteString("scenario " + name + "\n")
	b.WriteString("== trace\n")
	for _, line := range r.Lines() {
		b.WriteString(line + "\n")
	}
	b.WriteString("== state\n")
	for _, line := range r.State {
		b.WriteString(line + "\n")
	}
	return []byte(b.String())
}
