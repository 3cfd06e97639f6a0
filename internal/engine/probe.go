package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fieldsync/internal/remote"
)

// DefaultProbeInterval is how often the Probe checks connectivity.
const DefaultProbeInterval = 15 * time.Second

// Probe turns periodic remote health checks into SetOnline transitions.
type Probe struct {
	pinger   remote.Pinger
	orch     *Orchestrator
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProbe creates a Probe. interval <= 0 means DefaultProbeInterval.
func NewProbe(p remote.Pinger, o *Orchestrator, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{
		pinger:   p,
		orch:     o,
		interval: interval,
		timeout:  interval,
		logger:   o.logger,
	}
}

// Check pings once and reports the result to the orchestrator. The remote is
// considered reachable whenever it answered, even with an authentication or
// conflict error; only transport-level failures count as offline.
func (p *Probe) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.pinger.Ping(pingCtx)
	cancel()

	online := Reachable(err)
	if err != nil && online {
		p.logger.Debug("probe reached remote with error", "error", err)
	}

	if result, err := p.orch.SetOnline(ctx, online); err != nil {
		p.logger.Error("drain after reconnect failed", "error", err)
	} else if result != nil && result.AuthAborted() {
		p.logger.Warn("drain after reconnect aborted on authentication failure")
	}
	return online
}

// Run checks immediately and then every interval until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Reachable reports whether a ping error still proves the remote answered.
func Reachable(err error) bool {
	if err == nil {
		return true
	}
	switch remote.KindOf(err) {
	case remote.KindAuth, remote.KindConflict, remote.KindOther:
		return true
	}
	return false
}
