package secondary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okupy/okupy/internal/credcipher"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/directory/directorytest"
	"github.com/okupy/okupy/internal/pwhash"
)

const (
	testUser     = "alice"
	testPassword = "secret"
)

type memSession map[string]any

func (s memSession) Get(key string) any      { return s[key] }
func (s memSession) Set(key string, val any) { s[key] = val }
func (s memSession) Delete(key string)       { delete(s, key) }

type fixture struct {
	server  *directorytest.Server
	manager *Manager
	hasher  *pwhash.Hasher
	dn      string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	server := directorytest.New()
	server.AddUser(testUser, testPassword, nil)

	c, err := credcipher.New("test-secret", "test-salt")
	require.NoError(t, err)

	hasher, err := pwhash.New(pwhash.SchemeMD5Crypt)
	require.NoError(t, err)

	return &fixture{
		server:  server,
		manager: New(server.Directory(), c, hasher),
		hasher:  hasher,
		dn:      directorytest.UserDN(testUser),
	}
}

func (f *fixture) passwords() []string {
	return f.server.Attr(f.dn, "userPassword")
}

func (f *fixture) hash(t *testing.T, password string) string {
	t.Helper()

	h, err := f.hasher.Encode([]byte(password))
	require.NoError(t, err)

	return h
}

func TestEstablish(t *testing.T) {
	f := setup(t)
	sess := memSession{}

	require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

	values := f.passwords()
	require.Len(t, values, 2)
	assert.Equal(t, testPassword, values[0])

	secret, err := f.manager.Retrieve(sess)
	require.NoError(t, err)
	assert.Len(t, secret, Length)
	assert.Equal(t, pwhash.Match, pwhash.Verify(encodePassword(secret), values[1]))

	// the session holds ciphertext, never the password itself
	stored, ok := sess[SessionKey].([]byte)
	require.True(t, ok)
	assert.NotContains(t, string(stored), string(encodePassword(secret)))
}

func TestEstablishThenRevokeRestoresEntry(t *testing.T) {
	f := setup(t)
	sess := memSession{}

	require.NoError(t, f.manager.Establish(sess, testUser, testPassword))
	require.NoError(t, f.manager.Revoke(sess, testUser))

	assert.Equal(t, []string{testPassword}, f.passwords())
	assert.NotContains(t, sess, SessionKey)

	_, err := f.manager.Retrieve(sess)
	require.ErrorIs(t, err, ErrNotEstablished)
}

func TestEstablishRemovesLeftovers(t *testing.T) {
	f := setup(t)

	old := f.hash(t, "left-over")
	matching := f.hash(t, testPassword)
	otherScheme, err := mustHasher(t, pwhash.SchemeSHA512Crypt).Encode([]byte("left-over"))
	require.NoError(t, err)

	f.server.SetAttr(f.dn, "userPassword", []string{
		testPassword,
		"{SSHA}c29tZXRoaW5nIGVsc2U=",
		old,
		matching,
		otherScheme,
	})

	sess := memSession{}
	require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

	values := f.passwords()
	assert.NotContains(t, values, old)
	assert.Contains(t, values, testPassword)
	assert.Contains(t, values, "{SSHA}c29tZXRoaW5nIGVsc2U=")
	assert.Contains(t, values, matching)
	assert.Contains(t, values, otherScheme)
	assert.Len(t, values, 5)
}

func TestEstablishErrors(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		f := setup(t)
		sess := memSession{}

		err := f.manager.Establish(sess, testUser, "wrong")
		require.ErrorIs(t, err, directory.ErrBindRejected)
		assert.Empty(t, sess)
		assert.Equal(t, []string{testPassword}, f.passwords())
	})

	t.Run("directory down", func(t *testing.T) {
		f := setup(t)
		f.server.SetDown(true)
		sess := memSession{}

		err := f.manager.Establish(sess, testUser, testPassword)
		require.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
		assert.Empty(t, sess)
	})
}

func TestEstablishRetriesConflict(t *testing.T) {
	f := setup(t)

	first := memSession{}
	require.NoError(t, f.manager.Establish(first, testUser, testPassword))

	// the leftover disappears between read and write once
	calls := 0
	f.server.SetModifyHook(func(string) {
		calls++
		if calls == 1 {
			f.server.SetAttr(f.dn, "userPassword", []string{testPassword})
		}
	})

	before := f.server.Modifies()
	second := memSession{}
	require.NoError(t, f.manager.Establish(second, testUser, testPassword))

	assert.Equal(t, int64(2), f.server.Modifies()-before)
	assert.Len(t, f.passwords(), 2)
	assert.Contains(t, second, SessionKey)
}

func TestEstablishGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := setup(t)

	first := memSession{}
	require.NoError(t, f.manager.Establish(first, testUser, testPassword))

	// every write races with another leftover being swapped in
	f.server.SetModifyHook(func(string) {
		f.server.SetAttr(f.dn, "userPassword", []string{testPassword, f.hash(t, "racing")})
	})

	before := f.server.Modifies()
	second := memSession{}
	err := f.manager.Establish(second, testUser, testPassword)
	require.ErrorIs(t, err, directory.ErrConflict)

	assert.Equal(t, int64(maxAttempts), f.server.Modifies()-before)
	assert.NotContains(t, second, SessionKey)
}

func TestConcurrentEstablish(t *testing.T) {
	f := setup(t)

	const n = 4

	var wg sync.WaitGroup

	errs := make([]error, n)

	for i := range n {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			errs[i] = f.manager.Establish(memSession{}, testUser, testPassword)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// every establish removes the leftover of the one before it
	assert.Len(t, f.passwords(), 2)
	assert.Zero(t, f.manager.locks.Len())
}

func TestRetrieve(t *testing.T) {
	f := setup(t)

	_, err := f.manager.Retrieve(memSession{})
	require.ErrorIs(t, err, ErrNotEstablished)

	_, err = f.manager.Retrieve(memSession{SessionKey: "not bytes"})
	require.ErrorIs(t, err, credcipher.ErrCipher)

	_, err = f.manager.Retrieve(memSession{SessionKey: []byte("garbage")})
	require.ErrorIs(t, err, credcipher.ErrCipher)
}

func TestRevoke(t *testing.T) {
	t.Run("nothing established", func(t *testing.T) {
		f := setup(t)
		before := f.server.Binds()

		require.NoError(t, f.manager.Revoke(memSession{}, testUser))
		assert.Equal(t, before, f.server.Binds())
	})

	t.Run("undecryptable value is dropped", func(t *testing.T) {
		f := setup(t)
		sess := memSession{SessionKey: []byte("garbage")}

		require.NoError(t, f.manager.Revoke(sess, testUser))
		assert.NotContains(t, sess, SessionKey)
		assert.Equal(t, []string{testPassword}, f.passwords())
	})

	t.Run("already removed from directory", func(t *testing.T) {
		f := setup(t)
		sess := memSession{}
		require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

		f.server.SetAttr(f.dn, "userPassword", []string{testPassword})

		require.NoError(t, f.manager.Revoke(sess, testUser))
		assert.NotContains(t, sess, SessionKey)
	})

	t.Run("directory down keeps session", func(t *testing.T) {
		f := setup(t)
		sess := memSession{}
		require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

		f.server.SetDown(true)

		err := f.manager.Revoke(sess, testUser)
		require.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
		assert.Contains(t, sess, SessionKey)
	})

	t.Run("other sessions survive", func(t *testing.T) {
		f := setup(t)
		sess := memSession{}
		require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

		other := f.hash(t, testPassword)
		f.server.SetAttr(f.dn, "userPassword", append(f.passwords(), other))

		require.NoError(t, f.manager.Revoke(sess, testUser))
		assert.Equal(t, []string{testPassword, other}, f.passwords())
	})
}

func TestBoundIdentity(t *testing.T) {
	f := setup(t)
	sess := memSession{}

	_, err := f.manager.BoundIdentity(sess, testUser, "")
	require.ErrorIs(t, err, ErrSecondaryCredentialUnavailable)
	require.ErrorIs(t, err, ErrNotEstablished)

	h, err := f.manager.BoundIdentity(sess, testUser, testPassword)
	require.NoError(t, err)
	assert.Equal(t, f.dn, h.DN())
	h.Close()

	_, err = f.manager.BoundIdentity(sess, testUser, "wrong")
	require.ErrorIs(t, err, directory.ErrBindRejected)

	require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

	h, err = f.manager.BoundIdentity(sess, testUser, "")
	require.NoError(t, err)

	entry, err := h.Load()
	require.NoError(t, err)
	assert.Equal(t, testUser, entry.Get("uid"))
	h.Close()

	// removed behind our back
	f.server.SetAttr(f.dn, "userPassword", []string{testPassword})

	_, err = f.manager.BoundIdentity(sess, testUser, "")
	require.ErrorIs(t, err, ErrSecondaryCredentialUnavailable)

	_, err = f.manager.BoundIdentity(memSession{SessionKey: []byte("garbage")}, testUser, "")
	require.ErrorIs(t, err, ErrSecondaryCredentialUnavailable)
	require.ErrorIs(t, err, credcipher.ErrCipher)
}

func TestBoundIdentityDirectoryDown(t *testing.T) {
	f := setup(t)
	sess := memSession{}
	require.NoError(t, f.manager.Establish(sess, testUser, testPassword))

	f.server.SetDown(true)

	_, err := f.manager.BoundIdentity(sess, testUser, "")
	require.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
	require.NotErrorIs(t, err, ErrSecondaryCredentialUnavailable)
}

func mustHasher(t *testing.T, scheme pwhash.Scheme) *pwhash.Hasher {
	t.Helper()

	h, err := pwhash.New(scheme)
	require.NoError(t, err)

	return h
}
