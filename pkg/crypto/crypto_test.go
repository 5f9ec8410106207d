package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret := []byte("user-bearer-token-abc123")
	plaintext := []byte(`{"command":"npx","args":["-y","some-server"]}`)

	blob, err := Encrypt(secret, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, blob)

	got, err := Decrypt(secret, blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongSecretFails(t *testing.T) {
	blob, err := Encrypt([]byte("secret-a"), []byte("hello"))
	require.NoError(t, err)

	_, err = Decrypt([]byte("secret-b"), blob)
	require.Error(t, err)
}

func TestEncryptIsNondeterministic(t *testing.T) {
	secret := []byte("secret")
	a, err := Encrypt(secret, []byte("hello"))
	require.NoError(t, err)
	b, err := Encrypt(secret, []byte("hello"))
	require.NoError(t, err)
	require.NotEqual(t, a, b, "salt/nonce must be freshly random each call")
}

func TestDecryptTooShort(t *testing.T) {
	_, err := Decrypt([]byte("secret"), []byte("short"))
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}
