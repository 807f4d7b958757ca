package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"

	"github.com/okupy/okupy/internal/alert"
	"github.com/okupy/okupy/internal/auth/authtest"
	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/db/dbtest"
	"github.com/okupy/okupy/internal/db/models"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/directory/directorytest"
	"github.com/okupy/okupy/internal/identity"
)

type fixture struct {
	srv      *directorytest.Server
	db       *gorm.DB
	alerts   *alert.Recorder
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := directorytest.New()
	srv.AddUser("alice", "alicepass", map[string][]string{
		"mail":      {"alice@example.org", "alice@example.net"},
		"cn":        {"Alice Liddell"},
		"givenName": {"Alice"},
		"memberOf":  {"cn=developers,ou=groups,o=test"},
	})
	srv.AddUser("bob", "bobpass", map[string][]string{
		"mail": {"bob@example.org"},
	})

	db := dbtest.Open(t)
	rec := &alert.Recorder{}

	return &fixture{
		srv:      srv,
		db:       db,
		alerts:   rec,
		resolver: NewResolver(srv.Directory(), db, rec),
	}
}

func (f *fixture) users(t *testing.T) int64 {
	t.Helper()

	var n int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&n).Error)

	return n
}

func TestSourcesOrder(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []identity.Source{
		identity.SourceCertificate,
		identity.SourceSSHKey,
		identity.SourcePassword,
		identity.SourceSession,
	}, f.resolver.Sources())
}

func TestAnonymous(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Resolve(nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = f.resolver.Authenticate(&Credentials{})
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	assert.Equal(t, int64(0), f.srv.Binds())
}

func TestPasswordLogin(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "alice", res.Identity.Username)
	assert.Equal(t, identity.SourcePassword, res.Identity.Source)
	assert.Equal(t, "Alice Liddell", res.Identity.DisplayName)
	assert.Equal(t, []string{"cn=developers,ou=groups,o=test"}, res.Identity.Groups)

	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, models.UnusablePassword, res.User.Password)
	assert.False(t, res.User.HasUsablePassword())

	groups, err := shadowuser.Groups(f.db, res.User.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "developers", groups[0].Name)
}

func TestPasswordLoginWrongPassword(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Resolve(&Credentials{Username: "alice", Password: "wrong"})
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = f.resolver.Authenticate(&Credentials{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	assert.Equal(t, int64(0), f.users(t))
	assert.Empty(t, f.alerts.Directory)
}

func TestPasswordLoginWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		ok       bool
	}{
		{"leading", " alice", "alicepass", true},
		{"trailing", "alice ", "alicepass", true},
		{"both", "\talice\n", "alicepass", true},
		{"wrong password", " alice ", "bobpass", false},
		{"inner whitespace", "al ice", "alicepass", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res, err := f.resolver.Resolve(&Credentials{Username: tt.username, Password: tt.password})
			require.NoError(t, err)

			if tt.ok {
				require.NotNil(t, res)
				assert.Equal(t, "alice", res.User.Username)
			} else {
				assert.Nil(t, res)
			}
		})
	}
}

func TestPasswordLoginCaseInsensitive(t *testing.T) {
	f := newFixture(t)

	first, err := f.resolver.Authenticate(&Credentials{Username: "Alice", Password: "alicepass"})
	require.NoError(t, err)

	second, err := f.resolver.Authenticate(&Credentials{Username: "ALICE", Password: "alicepass"})
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "Alice", second.User.Username)
	assert.Equal(t, int64(1), f.users(t))
}

func TestPasswordLoginDirectoryDown(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.NoError(t, err)

	f.srv.SetDown(true)

	res, err := f.resolver.Resolve(&Credentials{Username: " alice ", Password: "alicepass"})
	require.Error(t, err)
	require.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
	require.NotErrorIs(t, err, ErrAuthenticationFailed)
	assert.Nil(t, res)

	require.Len(t, f.alerts.Directory, 1)
	assert.Equal(t, "alice", f.alerts.Directory[0].Username)
	assert.ErrorIs(t, f.alerts.Directory[0].Err, directory.ErrDirectoryUnavailable)
}

func TestCertificateLogin(t *testing.T) {
	f := newFixture(t)

	// two addresses of the same entry are not ambiguous
	cert := authtest.Certificate(t, "alice@example.org", "alice@example.net", "ALICE@example.org")

	res, err := f.resolver.Authenticate(&Credentials{TLSVerify: TLSVerifySuccess, Certificate: cert})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Identity.Username)
	assert.Equal(t, identity.SourceCertificate, res.Identity.Source)
	assert.Equal(t, models.AuthSourceCertificate, res.User.AuthSource)
	assert.Equal(t, int64(1), f.users(t))

	// no bind happens for certificate logins, only service searches
	assert.Equal(t, int64(0), f.srv.Modifies())
}

func TestCertificateLoginNoMatch(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		creds *Credentials
	}{
		{
			name:  "unknown address",
			creds: &Credentials{TLSVerify: TLSVerifySuccess, Certificate: authtest.Certificate(t, "carol@example.org")},
		},
		{
			name:  "not verified",
			creds: &Credentials{TLSVerify: TLSVerifyNone, Certificate: authtest.Certificate(t, "alice@example.org")},
		},
		{
			name:  "verification failed",
			creds: &Credentials{TLSVerify: TLSVerifyFailure, Certificate: authtest.Certificate(t, "alice@example.org")},
		},
		{
			name:  "two entries",
			creds: &Credentials{TLSVerify: TLSVerifySuccess, Certificate: authtest.Certificate(t, "alice@example.org", "bob@example.org")},
		},
		{
			name:  "garbage",
			creds: &Credentials{TLSVerify: TLSVerifySuccess, Certificate: "not a certificate"},
		},
		{
			name:  "no addresses",
			creds: &Credentials{TLSVerify: TLSVerifySuccess, Certificate: authtest.Certificate(t, "")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.resolver.Resolve(tt.creds)
			require.NoError(t, err)
			assert.Nil(t, res)
		})
	}

	assert.Equal(t, int64(0), f.users(t))
}

func TestCertificateEmails(t *testing.T) {
	emails, err := CertificateEmails(authtest.Certificate(t, "a@example.org", "b@example.org", "A@example.org"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.org", "A@example.org"}, emails)

	_, err = CertificateEmails("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")
	require.Error(t, err)

	_, err = CertificateEmails("")
	require.Error(t, err)
}

func TestSSHKeyLogin(t *testing.T) {
	f := newFixture(t)

	signer, line := authtest.SSHKey(t, "alice@laptop")
	_, other := authtest.SSHKey(t, "")

	f.srv.SetAttr(directorytest.UserDN("alice"), "sshPublicKey", []string{"not a key", other, line})

	res, err := f.resolver.Authenticate(&Credentials{SSHKey: signer.PublicKey()})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Identity.Username)
	assert.Equal(t, identity.SourceSSHKey, res.Identity.Source)
}

func TestSSHKeyLoginNoMatch(t *testing.T) {
	f := newFixture(t)

	unknown, _ := authtest.SSHKey(t, "")
	shared, line := authtest.SSHKey(t, "")

	f.srv.SetAttr(directorytest.UserDN("alice"), "sshPublicKey", []string{line})
	f.srv.SetAttr(directorytest.UserDN("bob"), "sshPublicKey", []string{"garbage", line})

	for _, key := range []ssh.PublicKey{unknown.PublicKey(), shared.PublicKey()} {
		res, err := f.resolver.Resolve(&Credentials{SSHKey: key})
		require.NoError(t, err)
		assert.Nil(t, res)
	}
}

func TestLookupRecordsNothing(t *testing.T) {
	f := newFixture(t)

	signer, line := authtest.SSHKey(t, "")
	f.srv.SetAttr(directorytest.UserDN("alice"), "sshPublicKey", []string{line})

	id, err := f.resolver.Lookup(&Credentials{SSHKey: signer.PublicKey()})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "alice", id.Username)
	assert.Zero(t, f.users(t))

	res, err := f.resolver.Admit(id)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.AuthSourceSSHKey, res.User.AuthSource)
	assert.Equal(t, int64(1), f.users(t))

	require.NoError(t, shadowuser.SetActive(f.db, res.User.ID, false))

	res, err = f.resolver.Admit(id)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSessionLogin(t *testing.T) {
	f := newFixture(t)

	first, err := f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.NoError(t, err)

	binds := f.srv.Binds()
	f.srv.SetDown(true)

	res, err := f.resolver.Authenticate(&Credentials{SessionUserID: first.User.ID})
	require.NoError(t, err)
	assert.Equal(t, identity.SourceSession, res.Identity.Source)
	assert.Equal(t, first.User.ID, res.User.ID)
	assert.Equal(t, []string{"cn=developers,ou=groups,o=test"}, res.Identity.Groups)
	assert.Equal(t, binds, f.srv.Binds())

	res, err = f.resolver.Resolve(&Credentials{SessionUserID: 999})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDisabledUser(t *testing.T) {
	f := newFixture(t)

	first, err := f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.NoError(t, err)
	require.NoError(t, shadowuser.SetActive(f.db, first.User.ID, false))

	_, err = f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	res, err := f.resolver.Resolve(&Credentials{SessionUserID: first.User.ID})
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, shadowuser.SetActive(f.db, first.User.ID, true))

	res, err = f.resolver.Authenticate(&Credentials{Username: "alice", Password: "alicepass"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, res.User.ID)
}

func TestPrecedence(t *testing.T) {
	f := newFixture(t)

	cert := authtest.Certificate(t, "bob@example.org")

	res, err := f.resolver.Authenticate(&Credentials{
		TLSVerify:   TLSVerifySuccess,
		Certificate: cert,
		Username:    "alice",
		Password:    "alicepass",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Identity.Username)
	assert.Equal(t, identity.SourceCertificate, res.Identity.Source)

	// a certificate without a match falls through to the password
	res, err = f.resolver.Authenticate(&Credentials{
		TLSVerify:   TLSVerifySuccess,
		Certificate: authtest.Certificate(t, "carol@example.org"),
		Username:    "alice",
		Password:    "alicepass",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Identity.Username)
}

type stubProbe struct {
	source identity.Source
	id     *identity.Identity
	err    error
	calls  int
}

func (p *stubProbe) Source() identity.Source {
	return p.source
}

func (p *stubProbe) Probe(*Credentials) (*identity.Identity, error) {
	p.calls++

	return p.id, p.err
}

func TestResolveStopsAtFirstIdentity(t *testing.T) {
	db := dbtest.Open(t)

	first := &stubProbe{source: identity.SourceCertificate}
	second := &stubProbe{source: identity.SourceSSHKey, id: &identity.Identity{Username: "dave", Source: identity.SourceSSHKey}}
	third := &stubProbe{source: identity.SourcePassword, id: &identity.Identity{Username: "erin", Source: identity.SourcePassword}}

	r := NewResolverWithProbes(db, &alert.Recorder{}, first, second, third)

	res, err := r.Resolve(&Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "dave", res.User.Username)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestResolveStopsAtError(t *testing.T) {
	db := dbtest.Open(t)
	rec := &alert.Recorder{}

	failing := &stubProbe{source: identity.SourceCertificate, err: errors.New("boom")}
	next := &stubProbe{source: identity.SourcePassword, id: &identity.Identity{Username: "erin"}}

	r := NewResolverWithProbes(db, rec, failing, next)

	_, err := r.Resolve(&Credentials{})
	require.Error(t, err)
	assert.Equal(t, 0, next.calls)
	assert.Empty(t, rec.Directory)
}

func TestParseTLSVerify(t *testing.T) {
	assert.Equal(t, TLSVerifySuccess, ParseTLSVerify("SUCCESS"))
	assert.Equal(t, TLSVerifySuccess, ParseTLSVerify(" success "))
	assert.Equal(t, TLSVerifyNone, ParseTLSVerify(""))
	assert.Equal(t, TLSVerifyNone, ParseTLSVerify("NONE"))
	assert.Equal(t, TLSVerifyFailure, ParseTLSVerify("FAILED:certificate has expired"))
}
