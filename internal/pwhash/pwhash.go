// Package pwhash encodes and verifies the password hash values stored in the
// directory's multi-valued password attribute.
//
// Verification never fails outright: a value is either a Match, a Mismatch, or
// Unrecognized when its encoding is not one this package understands. Callers
// rotating hash values must only ever remove values they got a definite answer
// for, so that hashes written by other tools sharing the attribute survive.
package pwhash

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/alexedwards/argon2id"
)

// Result is the outcome of verifying a candidate against one stored value.
type Result int

const (
	// Mismatch means the value was understood and does not belong to the candidate.
	Mismatch Result = iota
	// Match means the value is a hash of the candidate.
	Match
	// Unrecognized means the value uses an encoding this package can not check.
	Unrecognized
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return "unrecognized"
	}
}

// Scheme names a hash encoding Encode can produce.
type Scheme string

const (
	// SchemeMD5Crypt is {CRYPT}$1$..., the format historically written by the portal.
	SchemeMD5Crypt Scheme = "md5-crypt"
	// SchemeSHA512Crypt is {CRYPT}$6$....
	SchemeSHA512Crypt Scheme = "sha512-crypt"
	// SchemeArgon2id is {ARGON2}$argon2id$..., understood by the OpenLDAP argon2 module.
	SchemeArgon2id Scheme = "argon2id"
)

const (
	tagCrypt  = "{CRYPT}"
	tagArgon2 = "{ARGON2}"

	prefixMD5     = "$1$"
	prefixSHA256  = "$5$"
	prefixSHA512  = "$6$"
	prefixArgon2i = "$argon2id$"
)

// ErrUnknownScheme is returned by New for an unsupported scheme name.
var ErrUnknownScheme = errors.New("unknown password hash scheme")

// Hasher produces new hash values in one scheme.
type Hasher struct {
	scheme Scheme
}

// New returns a Hasher for scheme. An empty scheme selects SchemeMD5Crypt.
func New(scheme Scheme) (*Hasher, error) {
	switch scheme {
	case "":
		scheme = SchemeMD5Crypt
	case SchemeMD5Crypt, SchemeSHA512Crypt, SchemeArgon2id:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	return &Hasher{scheme: scheme}, nil
}

// Scheme returns the scheme used by Encode.
func (h *Hasher) Scheme() Scheme {
	return h.scheme
}

// Encode hashes password with a fresh random salt and returns the tagged value
// ready to be stored in the directory.
func (h *Hasher) Encode(password []byte) (string, error) {
	var (
		out string
		err error
	)

	switch h.scheme {
	case SchemeSHA512Crypt:
		out, err = sha512_crypt.New().Generate(password, nil)
		out = tagCrypt + out
	case SchemeArgon2id:
		out, err = argon2id.CreateHash(string(password), argon2id.DefaultParams)
		out = tagArgon2 + out
	default:
		out, err = md5_crypt.New().Generate(password, nil)
		out = tagCrypt + out
	}

	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return out, nil
}

// Verify checks candidate against one stored value.
func Verify(candidate []byte, stored string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Unrecognized
		}
	}()

	tag, body, ok := splitTag(stored)
	if !ok {
		return Unrecognized
	}

	switch tag {
	case tagCrypt:
		return verifyCrypt(candidate, body)
	case tagArgon2:
		return verifyArgon2(candidate, body)
	default:
		return Unrecognized
	}
}

// Recognized reports whether Verify can give a definite answer for stored.
func Recognized(stored string) bool {
	tag, body, ok := splitTag(stored)
	if !ok {
		return false
	}

	switch tag {
	case tagCrypt:
		return cryptFor(body) != nil
	case tagArgon2:
		return strings.HasPrefix(body, prefixArgon2i)
	default:
		return false
	}
}

// SchemeOf returns the Encode scheme stored was written in. It reports false
// for values Encode never produces, including sha256-crypt.
func SchemeOf(stored string) (Scheme, bool) {
	tag, body, ok := splitTag(stored)
	if !ok {
		return "", false
	}

	switch {
	case tag == tagCrypt && strings.HasPrefix(body, prefixMD5):
		return SchemeMD5Crypt, true
	case tag == tagCrypt && strings.HasPrefix(body, prefixSHA512):
		return SchemeSHA512Crypt, true
	case tag == tagArgon2 && strings.HasPrefix(body, prefixArgon2i):
		return SchemeArgon2id, true
	default:
		return "", false
	}
}

// Retire returns values without the ones retiring selects. A single value is
// never removed, so an attribute is never emptied by rotation.
func Retire(values []string, retiring func(string) bool) []string {
	if len(values) <= 1 {
		return values
	}

	kept := make([]string, 0, len(values))

	for _, v := range values {
		if retiring(v) {
			continue
		}

		kept = append(kept, v)
	}

	return kept
}

func splitTag(stored string) (tag, body string, ok bool) {
	if !strings.HasPrefix(stored, "{") {
		return "", "", false
	}

	end := strings.IndexByte(stored, '}')
	if end < 0 {
		return "", "", false
	}

	return strings.ToUpper(stored[:end+1]), stored[end+1:], true
}

func cryptFor(body string) crypt.Crypter {
	switch {
	case strings.HasPrefix(body, prefixMD5):
		return md5_crypt.New()
	case strings.HasPrefix(body, prefixSHA256):
		return sha256_crypt.New()
	case strings.HasPrefix(body, prefixSHA512):
		return sha512_crypt.New()
	default:
		return nil
	}
}

func verifyCrypt(candidate []byte, body string) Result {
	c := cryptFor(body)
	if c == nil {
		return Unrecognized
	}

	err := c.Verify(body, candidate)

	switch {
	case err == nil:
		return Match
	case errors.Is(err, crypt.ErrKeyMismatch):
		return Mismatch
	default:
		return Unrecognized
	}
}

func verifyArgon2(candidate []byte, body string) Result {
	if !strings.HasPrefix(body, prefixArgon2i) {
		return Unrecognized
	}

	match, err := argon2id.ComparePasswordAndHash(string(candidate), body)
	if err != nil {
		return Unrecognized
	}

	if match {
		return Match
	}

	return Mismatch
}
