package engine

import "context"

// Online reports the last connectivity state set with SetOnline.
func (o *Orchestrator) Online() bool {
	return o.online.Load()
}

// SetOnline records a connectivity transition. Going from offline to online
// triggers a pass, which runs on the caller's goroutine; the result is
// returned. Any other call returns a nil result.
//
// Rapid toggles cannot cause overlapping passes: every trigger funnels
// through the same single-flight guard as DrainQueue.
func (o *Orchestrator) SetOnline(ctx context.Context, online bool) (*PassResult, error) {
	was := o.online.Swap(online)
	if was == online {
		return nil, nil
	}
	o.logger.Info("connectivity changed", "online", online)
	if !online {
		return nil, nil
	}
	return o.DrainQueue(ctx)
}

// TriggerSync is the manual trigger. It is equivalent to DrainQueue.
func (o *Orchestrator) TriggerSync(ctx context.Context) (*PassResult, error) {
	return o.DrainQueue(ctx)
}
