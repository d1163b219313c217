package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("plan.yaml: no groups")
	wrapped := Wrap(base, "loading plan")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "loading plan: plan.yaml: no groups", wrapped.Error())
	assert.True(t, errors.Is(wrapped, base))
}

func TestWrapPlainError(t *testing.T) {
	sentinel := errors.New("boom")
	wrapped := Wrap(sentinel, "unit visual")

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, sentinel)
	assert.Equal(t, "unit visual: boom", wrapped.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", DatabaseError("record outcome", errors.New("disk full")))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeDatabaseError, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(errors.New("plain")))
}
