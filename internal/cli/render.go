package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/overlay"
	"github.com/roach88/fieldsync/internal/record"
)

// label turns a snake_case identifier into a title-cased label.
func label(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

func renderStatus(w io.Writer, st engine.Status) {
	connectivity, pass := "offline", "idle"
	if st.Online {
		connectivity = "online"
	}
	if st.Syncing {
		pass = "running"
	}
	fmt.Fprintf(w, "Connectivity: %s\n", connectivity)
	fmt.Fprintf(w, "Sync pass:    %s\n", pass)
	fmt.Fprintf(w, "Pending:      %d\n", st.Pending)
	fmt.Fprintf(w, "Quarantined:  %d\n", st.Quarantined)
}

func renderPass(w io.Writer, r *engine.PassResult) {
	switch {
	case r.Skipped:
		fmt.Fprintln(w, "Sync skipped: a pass is already running")
		return
	case r.Offline:
		fmt.Fprintln(w, "Sync skipped: offline")
		return
	}

	fmt.Fprintf(w, "Attempted %d, synced %d, requeued %d, quarantined %d\n",
		r.Attempted, r.Synced, r.Requeued, r.Quarantined)
	if r.StoreErrors > 0 {
		fmt.Fprintf(w, "Store errors: %d\n", r.StoreErrors)
	}
	if len(r.SyncedIDs) > 0 {
		fmt.Fprintf(w, "New server ids for: %s\n", strings.Join(r.SyncedIDs, ", "))
	}
	if r.AuthError != nil {
		fmt.Fprintf(w, "Aborted: %v\n", r.AuthError)
	}
}

func renderEnqueued(w io.Writer, e record.QueueEntry) {
	fmt.Fprintf(w, "Queued %s %s/%s as entry %s\n", label(string(e.Action)), e.Table, e.RecordID, e.EntryID)
}

func renderQuarantine(w io.Writer, entries []record.QuarantinedEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No quarantined entries.")
		return
	}
	for _, q := range entries {
		fmt.Fprintf(w, "%s  %s %s/%s  [%s, %d retries]\n",
			q.EntryID, label(string(q.Action)), q.Table, q.RecordID, label(string(q.Reason)), q.RetryCount)
		fmt.Fprintf(w, "    %s\n", q.ErrorMessage)
	}
}

func renderItems(w io.Writer, table string, items []overlay.Item) {
	if len(items) == 0 {
		fmt.Fprintf(w, "No %s records.\n", table)
		return
	}

	optimistic := false
	for _, it := range items {
		marker := " "
		if it.IsOptimistic {
			marker = "*"
			optimistic = true
		}
		fmt.Fprintf(w, "%s %s %s\n", marker, it.ID, compactJSON(it.Data))
	}
	if optimistic {
		fmt.Fprintln(w, "* not yet confirmed by the remote store")
	}
}

func compactJSON(p record.Payload) string {
	data, err := json.Marshal(p)
	if err != nil {
		return "<unencodable>"
	}
	return string(data)
}
