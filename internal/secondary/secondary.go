// Package secondary manages the session-scoped secondary password.
//
// After a password login the portal adds a random secondary password to the
// user's directory entry and keeps it, encrypted, in the session. Later
// privileged writes bind with it instead of asking for the primary password
// again. Logout removes it from the directory.
//
// Hash values in the password attribute are only ever removed when the
// verifier gives a definite answer for them, and an attribute holding a single
// value is never touched, so hashes written by other tools survive.
package secondary

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/credcipher"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
	"github.com/okupy/okupy/internal/keyedmutex"
	"github.com/okupy/okupy/internal/pwhash"
)

const (
	// SessionKey is the session key holding the encrypted secondary password.
	SessionKey = "secondary_password"

	// Length is the number of random bytes in a secondary password.
	Length = 48

	// maxAttempts bounds the retries of a write that lost a race.
	maxAttempts = 3
)

var (
	// ErrNotEstablished is returned by Retrieve for a session without a secondary password.
	ErrNotEstablished = errors.New("secondary password not established")

	// ErrSecondaryCredentialUnavailable is returned by BoundIdentity when
	// neither a password nor a usable secondary password exists. Callers ask
	// the user for the password.
	ErrSecondaryCredentialUnavailable = errors.New("secondary password not available")
)

// Session is the key-value store of one user session.
// *session.Session of fiber satisfies it.
type Session interface {
	Get(key string) any
	Set(key string, val any)
	Delete(key string)
}

// Manager creates, uses and revokes secondary passwords.
type Manager struct {
	dir    *directory.Directory
	cipher *credcipher.Cipher
	hasher *pwhash.Hasher
	locks  *keyedmutex.Mutex
}

// New returns a Manager.
func New(dir *directory.Directory, cipher *credcipher.Cipher, hasher *pwhash.Hasher) *Manager {
	return &Manager{
		dir:    dir,
		cipher: cipher,
		hasher: hasher,
		locks:  keyedmutex.New(),
	}
}

// Establish binds with the primary password, adds a fresh secondary password
// to the entry and stores it encrypted in sess.
//
// Leftover secondary passwords of earlier sessions are removed in the same
// write: values in the scheme the portal writes that the verifier positively
// rejects for the primary password. Values matching the primary and values the
// verifier does not understand are kept.
func (m *Manager) Establish(sess Session, username, primary string) error {
	unlock := m.locks.Lock(identity.Key(username))
	defer unlock()

	h, err := m.dir.Bind(directory.Alias(username), username, []byte(primary))
	if err != nil {
		return err
	}
	defer h.Close()

	secret := make([]byte, Length)
	if _, err = rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate secondary password: %w", err)
	}

	encrypted, err := m.cipher.Encrypt(secret)
	if err != nil {
		return err
	}

	hash, err := m.hasher.Encode(encodePassword(secret))
	if err != nil {
		return err
	}

	leftover := func(v string) bool {
		scheme, ok := pwhash.SchemeOf(v)

		return ok && scheme == m.hasher.Scheme() && pwhash.Verify([]byte(primary), v) == pwhash.Mismatch
	}

	err = m.update(h, func(values []string) []string {
		kept := pwhash.Retire(values, leftover)
		if removed := len(values) - len(kept); removed > 0 {
			log.Info().Str("username", h.Username()).Int("removed", removed).Msg("removed leftover secondary passwords")
		}

		return append(kept, hash)
	})
	if err != nil {
		return err
	}

	sess.Set(SessionKey, encrypted)

	log.Debug().Str("username", h.Username()).Msg("secondary password established")

	return nil
}

// Retrieve returns the secondary password of sess.
func (m *Manager) Retrieve(sess Session) ([]byte, error) {
	v := sess.Get(SessionKey)
	if v == nil {
		return nil, ErrNotEstablished
	}

	encrypted, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: session value is %T", credcipher.ErrCipher, v)
	}

	return m.cipher.Decrypt(encrypted, Length)
}

// Revoke removes the secondary password of sess from the directory and the
// session. A session without one is left alone.
func (m *Manager) Revoke(sess Session, username string) error {
	secret, err := m.Retrieve(sess)
	if err != nil {
		if errors.Is(err, ErrNotEstablished) {
			return nil
		}

		log.Warn().Err(err).Str("username", username).Msg("dropping undecryptable secondary password")
		sess.Delete(SessionKey)

		return nil
	}

	unlock := m.locks.Lock(identity.Key(username))
	defer unlock()

	password := encodePassword(secret)

	h, err := m.dir.Bind(directory.Alias(username), username, password)
	if err != nil {
		if errors.Is(err, directory.ErrBindRejected) {
			// already gone from the directory
			sess.Delete(SessionKey)

			return nil
		}

		return err
	}
	defer h.Close()

	err = m.update(h, func(values []string) []string {
		return pwhash.Retire(values, func(v string) bool {
			return pwhash.Verify(password, v) == pwhash.Match
		})
	})
	if err != nil {
		return err
	}

	sess.Delete(SessionKey)

	log.Debug().Str("username", h.Username()).Msg("secondary password revoked")

	return nil
}

// BoundIdentity binds as username with password, or with the secondary
// password of sess when password is empty. The caller closes the handle.
func (m *Manager) BoundIdentity(sess Session, username, password string) (*directory.Handle, error) {
	if password != "" {
		return m.dir.Bind(directory.Alias(username), username, []byte(password))
	}

	secret, err := m.Retrieve(sess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecondaryCredentialUnavailable, err)
	}

	h, err := m.dir.Bind(directory.Alias(username), username, encodePassword(secret))
	if err != nil {
		if errors.Is(err, directory.ErrBindRejected) {
			return nil, fmt.Errorf("%w: %w", ErrSecondaryCredentialUnavailable, err)
		}

		return nil, err
	}

	return h, nil
}

// update applies mutate to the password attribute and saves it, reloading and
// trying again when another writer changed the attribute in between.
func (m *Manager) update(h *directory.Handle, mutate func(values []string) []string) error {
	attr := m.dir.Config().PasswordAttr

	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var entry *directory.Entry

		entry, err = h.Load()
		if err != nil {
			return err
		}

		entry.SetValues(attr, mutate(entry.Values(attr)))

		err = h.Save(entry)
		if !errors.Is(err, directory.ErrConflict) {
			return err
		}

		log.Warn().Str("username", h.Username()).Int("attempt", attempt).
			Msg("password attribute changed concurrently, retrying")
	}

	return err
}

// encodePassword is the form of a secondary password sent to the directory.
func encodePassword(secret []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(secret)))
	base64.StdEncoding.Encode(out, secret)

	return out
}
