package credcipher

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, secret string) *Cipher {
	t.Helper()

	c, err := New(secret, "test-salt")
	require.NoError(t, err)

	return c
}

func TestNew_EmptySecret(t *testing.T) {
	c, err := New("", "salt")
	require.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, c)
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t, "s3cr3t")

	for i := 0; i < 20; i++ {
		plain := make([]byte, 48)
		_, err := rand.Read(plain)
		require.NoError(t, err)

		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, sealed)

		opened, err := c.Decrypt(sealed, len(plain))
		require.NoError(t, err)
		assert.Equal(t, plain, opened)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	c := newTestCipher(t, "s3cr3t")
	plain := []byte("same input, different output....................")

	a, err := c.Encrypt(plain)
	require.NoError(t, err)

	b, err := c.Encrypt(plain)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_Errors(t *testing.T) {
	c := newTestCipher(t, "s3cr3t")
	other := newTestCipher(t, "another secret")

	plain := make([]byte, 48)
	sealed, err := c.Encrypt(plain)
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	testCases := []struct {
		name       string
		cipher     *Cipher
		payload    []byte
		wantLength int
	}{
		{name: "empty payload", cipher: c, payload: nil, wantLength: 48},
		{name: "too short", cipher: c, payload: sealed[:10], wantLength: 48},
		{name: "tampered", cipher: c, payload: tampered, wantLength: 48},
		{name: "wrong key", cipher: other, payload: sealed, wantLength: 48},
		{name: "length mismatch", cipher: c, payload: sealed, wantLength: 32},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.cipher.Decrypt(tc.payload, tc.wantLength)
			require.ErrorIs(t, err, ErrCipher)
			assert.Nil(t, out)
		})
	}
}
