package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"commerce-core/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForError(apperr.NotFound("order not found")))
	assert.Equal(t, http.StatusBadRequest, statusForError(apperr.Validation("quantity must be positive")))
	assert.Equal(t, http.StatusConflict, statusForError(apperr.Conflict("insufficient stock")))
	assert.Equal(t, http.StatusServiceUnavailable, statusForError(apperr.Unavailable("lock wait expired")))
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("boom")))
}

func TestStatusForWrappedError(t *testing.T) {
	err := fmt.Errorf("reserve failed: %w", apperr.Conflict("insufficient stock"))
	assert.Equal(t, http.StatusConflict, statusForError(err))
}
