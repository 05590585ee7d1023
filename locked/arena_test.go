package locked

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendAndData(t *testing.T) {
	b := New()
	defer b.Destroy()

	b.Extend([]byte("hello"))
	assert.Equal(t, []byte("hello"), b.Data())
	assert.Equal(t, 5, b.Len())
}

func TestExtendPanicsOnExhaustion(t *testing.T) {
	b := New()
	defer b.Destroy()

	assert.Panics(t, func() {
		b.Extend(make([]byte, Capacity+1))
	})
}

func TestTruncateZeroesTail(t *testing.T) {
	b := New()
	defer b.Destroy()

	b.Extend([]byte("abcdef"))
	b.Truncate(3)
	assert.Equal(t, []byte("abc"), b.Data())
}

func TestDestroyZeroesAndIsIdempotent(t *testing.T) {
	b := New()
	b.Extend([]byte("secret"))
	b.Destroy()
	assert.Equal(t, 0, b.Len())
	require.NotPanics(t, b.Destroy)
}

func TestKeyPairSplit(t *testing.T) {
	buf := make([]byte, KeyPairSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	kp := NewKeyPair(buf)
	defer kp.Destroy()

	assert.Equal(t, buf[0:32], kp.EncKey())
	assert.Equal(t, buf[32:64], kp.MacKey())
}

func TestNewKeyPairPanicsOnWrongSize(t *testing.T) {
	assert.Panics(t, func() {
		NewKeyPair(make([]byte, 10))
	})
}
