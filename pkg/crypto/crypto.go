// Package crypto implements the launch-config-at-rest encryption described
// in spec.md §5: AES-256-GCM with a PBKDF2-SHA256 derived key, 100k
// iterations, a 128-bit salt and a 96-bit IV. Encryption/decryption are pure
// functions with no shared mutable state, as the spec requires.
//
// PBKDF2 has no standard-library implementation, so this reaches for
// golang.org/x/crypto/pbkdf2 (already present transitively via the
// teacher's own golang.org/x/crypto requirement) rather than hand-rolling
// key stretching.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 16 // 128 bits
	nonceSize      = 12 // 96 bits
	pbkdf2Rounds   = 100_000
	derivedKeySize = 32 // AES-256
)

var ErrCiphertextTooShort = errors.New("crypto: ciphertext shorter than salt+nonce")

// deriveKey stretches secret (the user's bearer token, per spec.md §5) into
// an AES-256 key using the given salt.
func deriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, pbkdf2Rounds, derivedKeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from secret. The returned
// blob is salt || nonce || ciphertext(+tag), so Decrypt needs only the blob
// and the original secret.
func Encrypt(secret, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	key := deriveKey(secret, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt given the same secret.
func Decrypt(secret, blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, ErrCiphertextTooShort
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	key := deriveKey(secret, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	return plaintext, nil
}
