package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValuationFailed, "valuation failed")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeValuationFailed, err.Code)
	assert.Equal(t, "valuation failed", err.Message)
	assert.NotEmpty(t, err.Stack)
	assert.Equal(t, "[VAL_002] valuation failed", err.Error())
}

func TestError_WithDetail(t *testing.T) {
	err := NotFound("valuation not found").WithDetail("id=abc123")
	assert.Equal(t, "[COMMON_005] valuation not found: id=abc123", err.Error())

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("detail"))
}

func TestWrap(t *testing.T) {
	t.Run("NilReturnsNil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrCodeDatabaseError, "query failed"))
	})

	t.Run("WrapsCause", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := Wrap(cause, ErrCodeDatabaseError, "query failed")
		require.NotNil(t, err)
		assert.Equal(t, ErrCodeDatabaseError, err.Code)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("PreservesCodeOnUnknown", func(t *testing.T) {
		inner := New(ErrCodeValuationNotFound, "valuation not found")
		err := Wrap(inner, ErrCodeUnknown, "while loading report")
		assert.Equal(t, ErrCodeValuationNotFound, err.Code)
	})
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeValuationNotFound, "gone")
	wrapped := Wrap(inner, ErrCodeInternal, "outer")

	assert.True(t, IsCode(wrapped, ErrCodeValuationNotFound))
	assert.True(t, IsCode(wrapped, ErrCodeInternal))
	assert.False(t, IsCode(wrapped, ErrCodeCacheError))
	assert.False(t, IsCode(nil, ErrCodeInternal))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("nope")))
	assert.True(t, IsNotFound(New(ErrCodeValuationNotFound, "nope")))
	assert.False(t, IsNotFound(Internal("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(NewValidationError("bad facts")))
	assert.True(t, IsValidation(InvalidParam("bad param")))
	assert.False(t, IsValidation(Conflict("dup")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, ErrCodeUnknown, GetCode(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeConflict, GetCode(Conflict("dup")))
}
