package pcissd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := NewError("AddTransaction", ErrCodeOverlap, "sector 512 already pending")
	assert.Equal(t, "pcissd: sector 512 already pending (op=AddTransaction)", err.Error())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError("AddTransaction", ErrCodeOverlap, "sector 512 already pending")
	target := NewError("", ErrCodeOverlap, "")
	assert.True(t, errors.Is(err, target), "errors.Is should match on code alone")

	other := NewError("", ErrCodeSGInvalid, "")
	assert.False(t, errors.Is(err, other), "errors.Is should not match a different code")
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("Start", ErrCodeDMANotRegistered, "no callback registered")
	wrapped := WrapError("AddTransaction", inner)
	assert.Equal(t, ErrCodeDMANotRegistered, wrapped.Code)
	assert.Equal(t, "AddTransaction", wrapped.Op)
}

func TestIsCode(t *testing.T) {
	err := NewError("Validate", ErrCodeInvalidParameters, "bad lanes")
	assert.True(t, IsCode(err, ErrCodeInvalidParameters))
	assert.False(t, IsCode(err, ErrCodeOverlap))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeInvalidParameters))
}

func TestProtocolViolationPanics(t *testing.T) {
	defer func() {
		r := recover()
		if assert.NotNil(t, r, "expected a panic") {
			err, ok := r.(*Error)
			if assert.True(t, ok, "panic value should be *Error") {
				assert.Equal(t, ErrCodeProtocolViolation, err.Code)
			}
		}
	}()
	protocolViolation("test", "boom")
}
