package logout

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestLogoutAnonymous(t *testing.T) {
	env := setup(t)

	resp := env.Get(t, Path, nil)

	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.LoginPath, resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, []string{handlertest.Password}, env.Passwords())
}

func TestLogoutRevokesSecondaryPassword(t *testing.T) {
	for _, method := range []string{fiber.MethodGet, fiber.MethodPost} {
		t.Run(method, func(t *testing.T) {
			env := setup(t)
			cookie := env.Login(t, handlertest.Username, handlertest.Password)
			require.Len(t, env.Passwords(), 2)

			var resp *http.Response
			if method == fiber.MethodPost {
				resp = env.PostForm(t, Path, nil, cookie)
			} else {
				resp = env.Get(t, Path, cookie)
			}

			require.Equal(t, fiber.StatusFound, resp.StatusCode)
			assert.Equal(t, handler.LoginPath, resp.Header.Get(fiber.HeaderLocation))

			// the entry is back to the state before login
			assert.Equal(t, []string{handlertest.Password}, env.Passwords())

			// the old cookie no longer opens a session
			resp = env.Get(t, handler.RootPath, cookie)
			require.Equal(t, fiber.StatusFound, resp.StatusCode)
			assert.Equal(t, handler.LoginPath, resp.Header.Get(fiber.HeaderLocation))
		})
	}
}

func TestLogoutAfterNewerLogin(t *testing.T) {
	env := setup(t)

	first := env.Login(t, handlertest.Username, handlertest.Password)
	second := env.Login(t, handlertest.Username, handlertest.Password)

	// the second login removed the first session's secondary password
	require.Len(t, env.Passwords(), 2)

	env.Get(t, Path, second)
	assert.Equal(t, []string{handlertest.Password}, env.Passwords())

	resp := env.Get(t, Path, first)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, []string{handlertest.Password}, env.Passwords())
}

func TestLogoutDirectoryDown(t *testing.T) {
	env := setup(t)
	cookie := env.Login(t, handlertest.Username, handlertest.Password)

	env.Server.SetDown(true)

	resp := env.Get(t, Path, cookie)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.LoginPath, resp.Header.Get(fiber.HeaderLocation))

	env.Server.SetDown(false)

	// the session is gone even though the hash could not be removed
	assert.Len(t, env.Passwords(), 2)

	resp = env.Get(t, handler.RootPath, cookie)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, handler.LoginPath, resp.Header.Get(fiber.HeaderLocation))
}
