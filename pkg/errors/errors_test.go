package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewProviderFailureError("gemini", cause)

	assert.Equal(t, "PROVIDER_FAILURE: provider gemini failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestTypeOf_WrappedChain(t *testing.T) {
	err := fmt.Errorf("loading conversation: %w", NewConversationNotOwnedError("c-1"))

	assert.Equal(t, ErrorTypeConversationNotOwned, TypeOf(err))
	assert.True(t, IsType(err, ErrorTypeConversationNotOwned))
	assert.False(t, IsType(err, ErrorTypeConversationNotFound))
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("boom")))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}
