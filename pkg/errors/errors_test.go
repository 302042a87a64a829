package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Clone(ErrNotFound, "student not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrDuplicateEmail))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestStoreUnavailableKeepsCause(t *testing.T) {
	err := StoreUnavailable(sql.ErrConnDone, "failed to load student")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.Contains(t, err.Error(), "failed to load student")
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	assert.Nil(t, FromError(nil))

	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := Validation("invalid student payload", map[string]string{"age": "must be at least 18"})
	assert.Same(t, typed, FromError(typed))
	assert.Equal(t, "must be at least 18", typed.Details["age"])
	assert.Nil(t, ErrValidation.Details)
}
