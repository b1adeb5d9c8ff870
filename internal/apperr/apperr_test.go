package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("order %s not found", "order-1")))
	assert.Equal(t, KindConflict, KindOf(Conflict("insufficient stock")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := Conflict("insufficient stock")
	wrapped := fmt.Errorf("reserve failed: %w", cause)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUnavailable, cause, "lock wait expired")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "lock wait expired")
	assert.Contains(t, err.Error(), "connection refused")
}
