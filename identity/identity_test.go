package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/locked"
)

func TestDerivePbkdf2IsDeterministic(t *testing.T) {
	pw := locked.NewMasterPassword([]byte("correct horse battery staple"))
	defer pw.Destroy()
	kdf := Kdf{Algorithm: Pbkdf2, Iterations: 100000}

	id1, err := Derive("User@Example.com", pw, kdf)
	require.NoError(t, err)
	defer id1.Keys.Destroy()
	defer id1.PasswordHash.Destroy()

	id2, err := Derive(" user@example.com ", pw, kdf)
	require.NoError(t, err)
	defer id2.Keys.Destroy()
	defer id2.PasswordHash.Destroy()

	assert.Equal(t, "user@example.com", id1.Email)
	assert.Equal(t, id1.Keys.Data(), id2.Keys.Data())
	assert.Equal(t, id1.PasswordHash.Data(), id2.PasswordHash.Data())
}

func TestDeriveZeroIterationsFails(t *testing.T) {
	pw := locked.NewMasterPassword([]byte("password"))
	defer pw.Destroy()

	_, err := Derive("a@b.com", pw, Kdf{Algorithm: Pbkdf2, Iterations: 0})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindPbkdf2ZeroIterations))
}

func TestDeriveArgon2id(t *testing.T) {
	pw := locked.NewMasterPassword([]byte("another password"))
	defer pw.Destroy()

	id, err := Derive("a@b.com", pw, Kdf{
		Algorithm:   Argon2id,
		Iterations:  3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
	})
	require.NoError(t, err)
	defer id.Keys.Destroy()
	defer id.PasswordHash.Destroy()

	assert.Len(t, id.Keys.Data(), 64)
	assert.Len(t, id.PasswordHash.Data(), 32)
}
