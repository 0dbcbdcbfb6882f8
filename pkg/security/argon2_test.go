package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testParams = Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashAndVerifySecret(t *testing.T) {
	encoded, err := HashSecret("s3cret", testParams)
	require.NoError(t, err)
	require.Contains(t, encoded, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := VerifySecret("s3cret", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifySecret("other", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashSecretUsesFreshSalt(t *testing.T) {
	a, err := HashSecret("s3cret", testParams)
	require.NoError(t, err)
	b, err := HashSecret("s3cret", testParams)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifySecretRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
	} {
		_, err := VerifySecret("s3cret", encoded)
		require.ErrorIs(t, err, ErrInvalidHash, encoded)
	}
}
