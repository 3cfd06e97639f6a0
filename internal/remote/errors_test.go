package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	assert.Equal(t, "CONFLICT: duplicate (status=409, code=23505)",
		NewConflictError(409, "23505", "duplicate").Error())
	assert.Equal(t, "AUTH: expired (status=401)", NewAuthError(401, "", "expired").Error())
	assert.Equal(t, "AUTH: jwt expired (code=PGRST301)", NewAuthError(0, "PGRST301", "jwt expired").Error())
	assert.Equal(t, "TRANSIENT: dial failed", NewTransientError(0, "dial failed", nil).Error())
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("insert farms: %w", NewAuthError(401, "", "bad token"))

	assert.Equal(t, KindAuth, KindOf(err))
	assert.True(t, IsAuth(err))
	assert.False(t, IsConflict(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "23503", CodeOf(NewConflictError(409, "23503", "fk")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransientError(0, "request failed", cause)
	assert.ErrorIs(t, err, cause)
}
