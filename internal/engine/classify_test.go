package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fieldsync/internal/remote"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"auth", remote.NewAuthError(401, "PGRST301", "JWT expired"), ClassAuthentication},
		{"conflict", remote.NewConflictError(409, "23505", "duplicate key"), ClassConflict},
		{"wrapped conflict", fmt.Errorf("insert: %w", remote.NewConflictError(409, "23503", "fk")), ClassConflict},
		{"transient", remote.NewTransientError(503, "unavailable", nil), ClassTransient},
		{"other kind", &remote.Error{Kind: remote.KindOther, Status: 400, Message: "bad"}, ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"plain error", errors.New("connection refused"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_IgnoresMessageText(t *testing.T) {
	// A transient failure whose text mentions a JWT is still transient.
	err := remote.NewTransientError(502, "gateway could not verify jwt", nil)
	assert.Equal(t, ClassTransient, Classify(err))

	// An untyped error that sounds like a conflict is not a conflict.
	assert.Equal(t, ClassTransient, Classify(errors.New("duplicate key value")))
}
