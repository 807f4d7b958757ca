package uniuri

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// TokenLen gives about 119 bits of entropy with StdChars.
const TokenLen = 20

// StdChars is the default alphabet. It is safe in URLs and JWT claims.
var StdChars = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")

// ErrAlphabet is returned for alphabets that are too short or too long.
var ErrAlphabet = errors.New("uniuri: alphabet must hold 2 to 256 characters")

// New returns a random identifier of TokenLen characters from StdChars.
func New() (string, error) {
	return NewLenChars(TokenLen, StdChars)
}

// NewLenChars returns a random identifier of length characters from chars.
// Bytes that would bias the modulo are drawn again.
func NewLenChars(length int, chars []byte) (string, error) {
	n := len(chars)
	if n < 2 || n > 256 {
		return "", ErrAlphabet
	}

	if length <= 0 {
		return "", nil
	}

	// largest byte value that maps uniformly onto chars
	limit := 255 - 256%n

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("uniuri: failed to read random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) > limit {
				continue
			}

			out = append(out, chars[int(b)%n])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
