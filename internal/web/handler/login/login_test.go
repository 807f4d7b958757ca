package login

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/auth/authtest"
	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/web/handler"
	"github.com/okupy/okupy/internal/web/handler/handlertest"
)

func setup(t *testing.T) *handlertest.Env {
	t.Helper()

	env := handlertest.New(t)

	var s Service
	require.NoError(t, s.Init(env.App, env.Deps))

	return env
}

func credentials(username, password string) url.Values {
	return url.Values{
		"username": {username},
		"password": {password},
	}
}

func TestInitRejectsMissingDeps(t *testing.T) {
	var s Service

	require.Error(t, s.Init(nil, nil))
	require.Error(t, s.Init(fiber.New(), &handler.Deps{}))
}

func TestGetRendersForm(t *testing.T) {
	env := setup(t)

	resp := env.Get(t, Path, nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, view, handlertest.Body(t, resp))
}

func TestPostSuccess(t *testing.T) {
	env := setup(t)

	resp := env.PostForm(t, Path, credentials(handlertest.Username, handlertest.Password), nil)

	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.RootPath, resp.Header.Get(fiber.HeaderLocation))

	cookie := handlertest.SessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure, "session cookie must be secure outside dev mode")
	assert.True(t, cookie.HttpOnly)

	// the primary password and the secondary password of the new session
	values := env.Passwords()
	require.Len(t, values, 2)
	assert.Equal(t, handlertest.Password, values[0])
}

func TestPostSuccessDevModeDisablesSecure(t *testing.T) {
	env := handlertest.New(t, func(cfg *config.Config) {
		cfg.DevMode = true
	})

	var s Service
	require.NoError(t, s.Init(env.App, env.Deps))

	resp := env.PostForm(t, Path, credentials(handlertest.Username, handlertest.Password), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	cookie := handlertest.SessionCookie(resp)
	require.NotNil(t, cookie)
	assert.False(t, cookie.Secure)
}

func TestPostAcceptsSurroundingWhitespace(t *testing.T) {
	env := setup(t)

	resp := env.PostForm(t, Path, credentials("  Alice ", handlertest.Password), nil)

	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Len(t, env.Passwords(), 2)
}

func TestPostFailures(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{name: "wrong password", form: credentials(handlertest.Username, "wrong")},
		{name: "unknown user", form: credentials("bob", handlertest.Password)},
		{name: "missing password", form: credentials(handlertest.Username, "")},
		{name: "missing username", form: credentials("", handlertest.Password)},
		{name: "blank username", form: credentials("   ", handlertest.Password)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)

			resp := env.PostForm(t, Path, tt.form, nil)

			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Contains(t, handlertest.Body(t, resp), handler.MsgLoginFailed)
			assert.Nil(t, handlertest.SessionCookie(resp))
			assert.Equal(t, []string{handlertest.Password}, env.Passwords())
			assert.Empty(t, env.Alerts.Directory)
		})
	}
}

func TestPostMalformedBody(t *testing.T) {
	env := setup(t)

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp := env.Do(t, req, nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, handlertest.Body(t, resp), handler.MsgLoginFailed)
}

func TestPostDirectoryDown(t *testing.T) {
	env := setup(t)
	env.Server.SetDown(true)

	resp := env.PostForm(t, Path, credentials(handlertest.Username, handlertest.Password), nil)

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, handlertest.Body(t, resp), handler.MsgServiceUnavailable)
	assert.Nil(t, handlertest.SessionCookie(resp))

	require.Len(t, env.Alerts.Directory, 1)
	assert.Equal(t, handlertest.Username, env.Alerts.Directory[0].Username)
}

func TestLoggedInUserIsRedirected(t *testing.T) {
	env := setup(t)
	cookie := env.Login(t, handlertest.Username, handlertest.Password)

	resp := env.Get(t, Path, cookie)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.RootPath, resp.Header.Get(fiber.HeaderLocation))

	resp = env.PostForm(t, Path, credentials(handlertest.Username, handlertest.Password), cookie)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	// no second secondary password for the same session
	assert.Len(t, env.Passwords(), 2)
}

func TestSSLDisabled(t *testing.T) {
	env := setup(t)

	resp := env.Get(t, SSLPath, nil)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSSLLogin(t *testing.T) {
	env := setup(t)
	env.Deps.Cfg.Auth.TrustProxyCertHeaders = true

	cert := authtest.Certificate(t, handlertest.Email)

	req := httptest.NewRequest(http.MethodGet, SSLPath, nil)
	req.Header.Set(env.Deps.Cfg.Auth.CertVerifyHeader, "SUCCESS")
	req.Header.Set(env.Deps.Cfg.Auth.CertHeader, url.PathEscape(cert))

	resp := env.Do(t, req, nil)

	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.RootPath, resp.Header.Get(fiber.HeaderLocation))
	assert.NotNil(t, handlertest.SessionCookie(resp))

	// certificate sessions have no secondary password
	assert.Equal(t, []string{handlertest.Password}, env.Passwords())
}

func TestSSLLoginRejected(t *testing.T) {
	tests := []struct {
		name   string
		verify string
		email  string
	}{
		{name: "proxy rejected the certificate", verify: "FAILED:certificate has expired", email: handlertest.Email},
		{name: "no certificate", verify: "NONE"},
		{name: "unknown address", verify: "SUCCESS", email: "mallory@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			env.Deps.Cfg.Auth.TrustProxyCertHeaders = true

			req := httptest.NewRequest(http.MethodGet, SSLPath, nil)
			req.Header.Set(env.Deps.Cfg.Auth.CertVerifyHeader, tt.verify)

			if tt.email != "" {
				req.Header.Set(env.Deps.Cfg.Auth.CertHeader, url.PathEscape(authtest.Certificate(t, tt.email)))
			}

			resp := env.Do(t, req, nil)

			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Contains(t, handlertest.Body(t, resp), handler.MsgLoginFailed)
			assert.Nil(t, handlertest.SessionCookie(resp))
		})
	}
}

func TestSSHTokenIsSingleUse(t *testing.T) {
	env := setup(t)

	res, err := env.Deps.Resolver.Authenticate(&auth.Credentials{
		Username: handlertest.Username,
		Password: handlertest.Password,
	})
	require.NoError(t, err)

	token, err := env.Deps.Tokens.Issue(res)
	require.NoError(t, err)

	resp := env.Get(t, SSHPath+"/"+token, nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.RootPath, resp.Header.Get(fiber.HeaderLocation))
	assert.NotNil(t, handlertest.SessionCookie(resp))

	resp = env.Get(t, SSHPath+"/"+token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, handlertest.Body(t, resp), handler.MsgLoginFailed)
	assert.Nil(t, handlertest.SessionCookie(resp))
}

func TestSSHTokenInvalid(t *testing.T) {
	env := setup(t)

	resp := env.Get(t, SSHPath+"/not-a-token", nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, handlertest.Body(t, resp), handler.MsgLoginFailed)
}

func TestSSHDisabled(t *testing.T) {
	env := handlertest.New(t)
	env.Deps.Tokens = nil

	var s Service
	require.NoError(t, s.Init(env.App, env.Deps))

	resp := env.Get(t, SSHPath+"/anything", nil)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
