package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

func TestProbe_ReachableRemoteGoesOnlineAndDrains(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "farms", record.ActionInsert, "F1", record.Payload{"name": "north"})

	p := NewProbe(h.remote, h.orch, time.Minute)
	assert.True(t, p.Check(context.Background()))

	assert.True(t, h.orch.Online())
	assert.Empty(t, h.pending(t))
	assert.Equal(t, [][]string{{"F1"}}, h.synced)
}

func TestProbe_TransportFailureGoesOffline(t *testing.T) {
	h := newHarness(t, WithOnline(true))
	h.remote.SetPingError(remote.NewTransientError(0, "dial tcp: connection refused", nil))

	p := NewProbe(h.remote, h.orch, time.Minute)
	assert.False(t, p.Check(context.Background()))
	assert.False(t, h.orch.Online())
}

func TestReachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"auth", remote.NewAuthError(401, "", "expired"), true},
		{"conflict", remote.NewConflictError(409, "23505", "dup"), true},
		{"other", &remote.Error{Kind: remote.KindOther, Status: 400, Message: "bad"}, true},
		{"transient", remote.NewTransientError(503, "down", nil), false},
		{"plain", errors.New("no route to host"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reachable(tt.err))
		})
	}
}

func TestProbe_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	p := NewProbe(h.remote, h.orch, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, h.orch.Online, time.Second, 5*time.Millisecond, "initial check runs immediately")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
