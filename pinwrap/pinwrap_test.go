package pinwrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/locked"
)

func testDek() *locked.KeyPair {
	buf := make([]byte, locked.KeyPairSize)
	for i := range buf {
		buf[i] = byte(i * 3)
	}
	return locked.NewKeyPair(buf)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	dek := testDek()
	defer dek.Destroy()

	pin := []byte("1234")
	localSecret := make([]byte, 32)
	params := Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1}

	blob, err := Wrap(pin, localSecret, "default", dek, params, 1, nil)
	require.NoError(t, err)

	tracker := &FailTracker{}
	unwrapped, rewrap, err := Unwrap(pin, localSecret, blob, tracker)
	require.NoError(t, err)
	defer unwrapped.Destroy()

	assert.False(t, rewrap)
	assert.Equal(t, dek.Data(), unwrapped.Data())
	assert.Equal(t, 0, tracker.FailCount)
}

func TestUnwrapWrongPinIncrementsFailCount(t *testing.T) {
	dek := testDek()
	defer dek.Destroy()

	localSecret := make([]byte, 32)
	params := Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1}
	blob, err := Wrap([]byte("1234"), localSecret, "default", dek, params, 1, nil)
	require.NoError(t, err)

	tracker := &FailTracker{}
	for i := 0; i < MaxFailCount-1; i++ {
		_, _, err := Unwrap([]byte("wrong"), localSecret, blob, tracker)
		require.Error(t, err)
		assert.True(t, errkind.Is(err, errkind.KindPinIncorrect))
	}

	_, _, err = Unwrap([]byte("wrong"), localSecret, blob, tracker)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindPinTooManyFailures))
	assert.Equal(t, MaxFailCount, tracker.FailCount)
}
