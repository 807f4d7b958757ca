// Package credcipher encrypts and decrypts short opaque credentials kept in the
// session store. One Cipher is built at startup from the configured secret and
// passed to whoever needs it.
package credcipher

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// argon2 parameters for deriving the key from the configured secret.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

var (
	// ErrCipher is returned for any payload that can not be turned back into the
	// expected plaintext: too short, tampered, encrypted with another key or of
	// the wrong length.
	ErrCipher = errors.New("malformed encrypted payload")

	// ErrEmptySecret is returned by New when no secret was configured.
	ErrEmptySecret = errors.New("cipher secret can not be empty")
)

// Cipher seals byte blobs with XChaCha20-Poly1305.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the key from secret and salt and returns a ready Cipher.
func New(secret, salt string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := argon2.IDKey([]byte(secret), []byte(salt), kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aead: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext for the given plaintext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt. The plaintext must be exactly
// expectedLength bytes long.
func (c *Cipher) Decrypt(ciphertext []byte, expectedLength int) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrCipher
	}

	plaintext, err := c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCipher, err)
	}

	if len(plaintext) != expectedLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCipher, len(plaintext), expectedLength)
	}

	return plaintext, nil
}
