package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

// scenarioEpoch anchors every timestamp a scenario produces.
var scenarioEpoch = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Harness runs one scenario against a fresh in-memory store and a scripted
// remote.
type Harness struct {
	store  *store.Store
	remote *testutil.FakeRemote
	orch   *engine.Orchestrator
	result *Result
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Entry ids, enqueue
// stamps and wall-clock timestamps are deterministic, so identical scenarios
// produce identical traces.
//
// Execution flow:
//  1. Create fresh in-memory database and scripted remote
//  2. Build the orchestrator with deterministic helpers and tracing hooks
//  3. Execute steps in order
//  4. Snapshot the final local and remote state
//  5. Evaluate assertions
//
// Returns an error only when the scenario could not be executed; assertion
// failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		remote: testutil.NewFakeRemote(),
		result: NewResult(),
		logger: logger,
	}
	h.remote.OnCall(func(c testutil.Call) {
		h.result.add("call", c.String())
	})

	orch, err := engine.New(ctx, st, h.remote, h.options(scenario)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	h.orch = orch

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	// State reads must not show up as remote calls.
	h.remote.OnCall(nil)
	if err := h.snapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}

	for i, assertion := range scenario.Assertions {
		if err := h.evaluate(ctx, assertion); err != nil {
			h.result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, assertion.Type, err))
		}
	}
	return h.result, nil
}

func (h *Harness) options(s *Scenario) []engine.Option {
	hooks := engine.NewHooks()
	hooks.OnAuthFailure(func(err error) {
		h.result.add("hook", "auth_failure "+err.Error())
	})
	hooks.OnSyncComplete(func(ids []string) {
		h.result.Synced = append(h.result.Synced, ids)
		h.result.add("hook", "sync_complete "+fmt.Sprint(ids))
	})

	opts := []engine.Option{
		engine.WithHooks(hooks),
		engine.WithClock(engine.NewClock()),
		engine.WithIDGenerator(engine.NewFixedGenerator("e")),
		engine.WithNow(testutil.NewStepTime(scenarioEpoch, time.Second).Now),
		engine.WithLogger(h.logger),
		engine.WithRecorder(traceRecorder{result: h.result}),
		engine.WithOnline(s.Online),
	}
	if s.MaxRetries > 0 {
		opts = append(opts, engine.WithPolicy(engine.Policy{MaxRetries: s.MaxRetries}))
	}
	if len(s.Tiers) > 0 {
		tiers := engine.DefaultTiers()
		for table, tier := range s.Tiers {
			tiers[table] = tier
		}
		opts = append(opts, engine.WithTiers(tiers))
	}
	return opts
}

func (h *Harness) runStep(ctx context.Context, st Step) error {
	switch {
	case st.Enqueue != nil:
		return h.enqueue(ctx, st.Enqueue)

	case st.Seed != nil:
		h.remote.Seed(st.Seed.Table, st.Seed.ID, record.Payload(st.Seed.Data))
		h.result.add("seed", st.Seed.Table+" "+st.Seed.ID)

	case st.Fail != nil:
		h.script(st.Fail)

	case st.Online != nil:
		state := "offline"
		if *st.Online {
			state = "online"
		}
		h.result.add("network", state)
		if _, err := h.orch.SetOnline(ctx, *st.Online); err != nil {
			return err
		}

	case st.Sync:
		h.result.add("sync", "")
		if _, err := h.orch.TriggerSync(ctx); err != nil {
			return err
		}

	case st.Retry != "":
		return h.retry(ctx, st.Retry)

	case st.Refresh != "":
		n, err := h.orch.RefreshCache(ctx, st.Refresh)
		if err != nil {
			h.result.add("refresh", fmt.Sprintf("%s failed: %v", st.Refresh, err))
			return nil
		}
		h.result.add("refresh", fmt.Sprintf("%s rows=%d", st.Refresh, n))
	}
	return nil
}

func (h *Harness) enqueue(ctx context.Context, e *EnqueueStep) error {
	action, err := record.ParseAction(e.Action)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Table, err)
	}
	m := engine.Mutation{
		Table:    e.Table,
		Action:   action,
		RecordID: e.ID,
		Payload:  record.Payload(e.Payload),
	}
	if m.Payload == nil {
		m.Payload = record.Payload{}
	}

	entry, err := h.orch.Enqueue(ctx, m)
	if engine.IsInvalidMutationError(err) {
		h.result.add("rejected", fmt.Sprintf("%s %s: %v", e.Action, e.Table, err))
		return nil
	}
	if err != nil {
		return err
	}
	h.result.add("enqueue", fmt.Sprintf("%s %s %s %s", entry.EntryID, entry.Action, entry.Table, entry.RecordID))
	return nil
}

func (h *Harness) script(f *FailStep) {
	times := f.Times
	if times == 0 {
		times = 1
	}
	message := f.Message
	if message == "" {
		message = "scripted failure"
	}

	errs := make([]error, times)
	for i := range errs {
		errs[i] = &remote.Error{
			Kind:    failKinds[f.Kind],
			Status:  f.Status,
			Code:    f.Code,
			Message: message,
		}
	}
	h.remote.FailNext(f.Op, f.Table, errs...)
	h.result.add("script", fmt.Sprintf("%s %s %s x%d", f.Op, f.Table, f.Kind, times))
}

// retry finds the quarantined entry for recordID and retries it.
func (h *Harness) retry(ctx context.Context, recordID string) error {
	entries, err := h.orch.ListQuarantined(ctx)
	if err != nil {
		return err
	}
	for _, q := range entries {
		if q.RecordID != recordID {
			continue
		}
		h.result.add("retry", q.EntryID)
		_, err := h.orch.RetryQuarantined(ctx, q.EntryID)
		return err
	}
	return fmt.Errorf("no quarantined entry for record %q", recordID)
}

// snapshot renders the final local and remote state into result.State.
func (h *Harness) snapshot(ctx context.Context) error {
	pending, err := h.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, e := range pending {
		h.result.State = append(h.result.State, fmt.Sprintf("pending %s %s %s %s retry=%d %s",
			e.EntryID, e.Table, e.RecordID, e.Action, e.RetryCount, testutil.CanonicalPayload(e.Payload)))
	}

	quarantined, err := h.store.ListQuarantined(ctx)
	if err != nil {
		return err
	}
	for _, q := range quarantined {
		h.result.State = append(h.result.State, fmt.Sprintf("quarantine %s %s %s %s reason=%s retry=%d error=%q",
			q.EntryID, q.Table, q.RecordID, q.Action, q.Reason, q.RetryCount, q.ErrorMessage))
	}

	overlays, err := h.store.ListOverlay(ctx, "")
	if err != nil {
		return err
	}
	for _, o := range overlays {
		h.result.State = append(h.result.State, fmt.Sprintf("overlay %s %s", o.Table, o.ID))
	}

	for _, table := range h.remote.Tables() {
		rows, err := h.remote.List(ctx, table)
		if err != nil {
			return err
		}
		for _, r := range rows {
			h.result.State = append(h.result.State, fmt.Sprintf("remote %s %s %s",
				table, r.ID, testutil.CanonicalPayload(r.Data)))
		}
	}
	return nil
}

// traceRecorder writes engine outcomes into the scenario trace.
type traceRecorder struct {
	result *Result
}

func (r traceRecorder) EntryFinished(table, action, outcome string) {
	r.result.add("entry", fmt.Sprintf("%s %s %s", table, action, outcome))
}

func (r traceRecorder) PassFinished(p *engine.PassResult) {
	switch {
	case p.Skipped:
		r.result.add("pass", "skipped")
		return
	case p.Offline:
		r.result.add("pass", "offline")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "attempted=%d synced=%d requeued=%d quarantined=%d",
		p.Attempted, p.Synced, p.Requeued, p.Quarantined)
	if p.StoreErrors > 0 {
		fmt.Fprintf(&b, " store_errors=%d", p.StoreErrors)
	}
	if p.AuthAborted() {
		b.WriteString(" auth_aborted")
	}
	r.result.add("pass", b.String())
}
