package cipherstring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/locked"
)

func testKeyPair() *locked.KeyPair {
	buf := make([]byte, locked.KeyPairSize)
	for i := range buf {
		buf[i] = byte(i + 1)
	}
	return locked.NewKeyPair(buf)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys := testKeyPair()
	defer keys.Destroy()

	plaintext := []byte("hunter2 is a great password")
	cs, err := Encrypt(keys, plaintext)
	require.NoError(t, err)
	assert.Equal(t, TypeAesCbc256HmacSha256, cs.Type)

	got, err := cs.Decrypt(keys)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestParseFormatRoundTrip(t *testing.T) {
	keys := testKeyPair()
	defer keys.Destroy()

	cs, err := Encrypt(keys, []byte("round trip me"))
	require.NoError(t, err)

	reparsed, err := Parse(cs.String())
	require.NoError(t, err)
	assert.Equal(t, cs.IV, reparsed.IV)
	assert.Equal(t, cs.Ciphertext, reparsed.Ciphertext)
	assert.Equal(t, cs.Mac, reparsed.Mac)
}

func TestBitFlipYieldsInvalidMac(t *testing.T) {
	keys := testKeyPair()
	defer keys.Destroy()

	cs, err := Encrypt(keys, []byte("tamper with me"))
	require.NoError(t, err)

	cs.Ciphertext[0] ^= 0x01
	_, err = cs.Decrypt(keys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mac")
}

func TestLegacyTypesRejected(t *testing.T) {
	_, err := Parse("0.AAAAAAAAAAAAAAAAAAAAAA==|AAAAAAAAAAAAAAAAAAAAAA==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")

	_, err = Parse("1.AAAAAAAAAAAAAAAAAAAAAA==|AAAAAAAAAAAAAAAAAAAAAA==|" +
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")
}

func TestMalformedInputRejected(t *testing.T) {
	_, err := Parse("not-a-cipherstring")
	require.Error(t, err)

	_, err = Parse("2.onlyonepart")
	require.Error(t, err)

	_, err = Parse("2.!!!notbase64|AAAA")
	require.Error(t, err)
}

func FuzzParse(f *testing.F) {
	f.Add("2.AAAAAAAAAAAAAAAAAAAAAA==|AAAAAAAAAAAAAAAAAAAAAA==|" +
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	f.Add("not-a-cipherstring")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		_, _ = Parse(s)
	})
}
