// Package handlertest builds a portal environment for handler tests: an
// in-memory directory, a migrated database, an in-memory session store and a
// fiber app running the auth middleware.
package handlertest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/okupy/okupy/internal/alert"
	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/credcipher"
	"github.com/okupy/okupy/internal/db/dbtest"
	"github.com/okupy/okupy/internal/directory/directorytest"
	"github.com/okupy/okupy/internal/pwhash"
	"github.com/okupy/okupy/internal/secondary"
	"github.com/okupy/okupy/internal/web/handler"
	middleware "github.com/okupy/okupy/internal/web/middleware/auth"
	websession "github.com/okupy/okupy/internal/web/session"
)

const (
	// Username is the account every environment holds.
	Username = "alice"
	// Password is Username's primary password.
	Password = "secret"
	// Email is Username's e-mail address.
	Email = "alice@example.com"
	// PrivilegedGroup is a group listed in Auth.PrivilegedGroups.
	PrivilegedGroup = "cn=admins,ou=groups,o=test"

	// CookieName is the session cookie name.
	CookieName = "session"

	loginHelperPath = "/__login"
)

// Views renders the template name followed by any message in the data, so
// tests can assert on what a handler would show. It keeps the data of the
// last render.
type Views struct {
	mu   sync.Mutex
	last fiber.Map
}

// Load implements fiber.Views.
func (v *Views) Load() error { return nil }

// Render implements fiber.Views.
func (v *Views) Render(w io.Writer, name string, data any, _ ...string) error {
	_, _ = io.WriteString(w, name)

	m, ok := data.(fiber.Map)
	if !ok {
		return nil
	}

	v.mu.Lock()
	v.last = m
	v.mu.Unlock()

	for _, key := range []string{"error", "Error", "Success"} {
		if msg, _ := m[key].(string); msg != "" {
			_, _ = io.WriteString(w, " "+msg)
		}
	}

	if need, _ := m["NeedPassword"].(bool); need {
		_, _ = io.WriteString(w, " NeedPassword")
	}

	return nil
}

// Last returns the data of the last render.
func (v *Views) Last() fiber.Map {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.last
}

// Env is a portal environment.
type Env struct {
	Server *directorytest.Server
	Alerts *alert.Recorder
	Deps   *handler.Deps
	Views  *Views
	App    *fiber.App
}

// New returns an Env with Username in the directory. The app runs the auth
// middleware only; the handler under test registers its routes on it.
// Options adjust the config before anything is built from it.
func New(t *testing.T, options ...func(cfg *config.Config)) *Env {
	t.Helper()

	server := directorytest.New()
	server.AddUser(Username, Password, map[string][]string{
		"mail":      {Email},
		"cn":        {"Alice Liddell"},
		"givenName": {"Alice"},
		"sn":        {"Liddell"},
	})

	cfg := &config.Config{
		Title: "okupy test",
		Webserver: config.Webserver{
			URL:  "http://localhost:8080",
			Port: 8080,
			Session: config.Session{
				ExpiryTime: time.Hour,
				CookieName: CookieName,
			},
		},
		LDAP: *server.Config(),
		Auth: config.Auth{
			Secret:           "test-secret",
			Argon2Salt:       "test-salt",
			HashScheme:       string(pwhash.SchemeMD5Crypt),
			CertVerifyHeader: "X-SSL-Client-Verify",
			CertHeader:       "X-SSL-Client-Cert",
			PrivilegedGroups: []string{PrivilegedGroup},
		},
	}

	for _, option := range options {
		option(cfg)
	}

	cipher, err := credcipher.New(cfg.Auth.Secret, cfg.Auth.Argon2Salt)
	require.NoError(t, err)

	hasher, err := pwhash.New(pwhash.SchemeMD5Crypt)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret, time.Minute)
	require.NoError(t, err)

	db := dbtest.Open(t)
	dir := server.Directory()
	alerts := &alert.Recorder{}

	deps := &handler.Deps{
		Cfg:       cfg,
		DB:        db,
		Resolver:  auth.NewResolver(dir, db, alerts),
		Secondary: secondary.New(dir, cipher, hasher),
		Sessions:  websession.New(nil, cfg),
		Tokens:    tokens,
	}

	views := &Views{}
	app := fiber.New(fiber.Config{Views: views})
	app.Use(middleware.New(deps.Resolver, deps.Sessions))

	return &Env{
		Server: server,
		Alerts: alerts,
		Deps:   deps,
		Views:  views,
		App:    app,
	}
}

// DN returns the DN of Username.
func (e *Env) DN() string {
	return directorytest.UserDN(Username)
}

// Passwords returns the password values of Username's entry.
func (e *Env) Passwords() []string {
	return e.Server.Attr(e.DN(), e.Deps.Cfg.LDAP.PasswordAttr)
}

// Login opens a password session for username the way the login form does
// and returns its cookie.
func (e *Env) Login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	app := fiber.New()
	app.Post(loginHelperPath, func(c *fiber.Ctx) error {
		res, err := e.Deps.Resolver.Authenticate(&auth.Credentials{Username: username, Password: password})
		if err != nil {
			return err
		}

		sess, err := e.Deps.Sessions.Get(c)
		if err != nil {
			return err
		}

		if err = websession.Login(sess, res); err != nil {
			return err
		}

		if err = e.Deps.Secondary.Establish(sess, username, password); err != nil {
			return err
		}

		if err = sess.Save(); err != nil {
			return err
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, loginHelperPath, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	cookie := SessionCookie(resp)
	require.NotNil(t, cookie, "login did not set a session cookie")

	return cookie
}

// SessionCookie returns the session cookie set by resp, or nil.
func SessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == CookieName && c.Value != "" {
			return c
		}
	}

	return nil
}

// Get sends a GET request with an optional session cookie.
func (e *Env) Get(t *testing.T, target string, cookie *http.Cookie) *http.Response {
	t.Helper()

	return e.Do(t, httptest.NewRequest(fiber.MethodGet, target, nil), cookie)
}

// PostForm sends a form POST with an optional session cookie.
func (e *Env) PostForm(t *testing.T, target string, form url.Values, cookie *http.Cookie) *http.Response {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	return e.Do(t, req, cookie)
}

// Do runs req against the app.
func (e *Env) Do(t *testing.T, req *http.Request, cookie *http.Cookie) *http.Response {
	t.Helper()

	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	return resp
}

// Body reads the response body.
func Body(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}
