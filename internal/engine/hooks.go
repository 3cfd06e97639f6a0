package engine

import "sync"

// Hooks holds the two collaborator callbacks the orchestrator invokes.
//
// Each slot holds at most one handler. Registering a handler replaces the
// previous one; registering nil unregisters. Handlers run synchronously on
// the goroutine that ran the pass, after the pass has released its guard.
//
// Thread-safety: Hooks is safe for concurrent use.
type Hooks struct {
	mu           sync.RWMutex
	authFailure  func(error)
	syncComplete func([]string)
}

// NewHooks returns an empty subscription object.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnAuthFailure registers fn to receive the classified error when a pass
// aborts on an authentication failure. The core performs no session teardown.
func (h *Hooks) OnAuthFailure(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authFailure = fn
}

// OnSyncComplete registers fn to receive, once per pass, the ordered client
// ids confirmed synced during that pass (possibly empty).
func (h *Hooks) OnSyncComplete(fn func([]string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.syncComplete = fn
}

func (h *Hooks) fireAuthFailure(err error) {
	h.mu.RLock()
	fn := h.authFailure
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (h *Hooks) fireSyncComplete(ids []string) {
	h.mu.RLock()
	fn := h.syncComplete
	h.mu.RUnlock()
	if fn != nil {
		out := make([]string, len(ids))
		copy(out, ids)
		fn(out)
	}
}
