package engine

// Recorder observes pass and entry outcomes. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	// PassFinished is called once for every DrainQueue call, skipped ones included.
	PassFinished(result *PassResult)

	// EntryFinished is called once per attempted entry with its outcome:
	// "synced", "requeued", "quarantined", "aborted" or "store_error".
	EntryFinished(table string, action string, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) PassFinished(*PassResult) {}
func (noopRecorder) EntryFinished(string, string, string) {}
