package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	err := New(KindInvalidMac, "invalid mac")
	assert.True(t, Is(err, KindInvalidMac))
	assert.False(t, Is(err, KindDecrypt))
	assert.Equal(t, KindInvalidMac, KindOf(err))
}

func TestWrapUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap(KindNetwork, inner, "request failed")
	require.ErrorIs(t, wrapped, inner)
	assert.Equal(t, "request failed", wrapped.Error())
}

func TestWithAttempt(t *testing.T) {
	err := New(KindIncorrectPassword, "invalid master password")
	err.WithAttempt(2, 3)
	assert.Equal(t, "invalid master password (attempt 2/3)", err.Error())
	assert.Equal(t, 2, err.Fields["attempt"])
}

func TestKindOfNonErrkind(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
}
