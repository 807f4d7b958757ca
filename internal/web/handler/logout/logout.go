// Package logout ends sessions.
package logout

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/web/handler"
	websession "github.com/okupy/okupy/internal/web/session"
)

// Path is the logout endpoint.
const Path = handler.RootPath + "logout"

// Service is the logout handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.deps = deps

	app.Get(Path, s.Logout)
	app.Post(Path, s.Logout)

	return nil
}

// Logout removes the secondary password from the directory and destroys the
// session. Anonymous requests are sent to the login page.
func (s *Service) Logout(c *fiber.Ctx) error {
	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")

		return c.Redirect(handler.LoginPath)
	}

	if username := websession.Username(sess); username != "" {
		// a failed revoke leaves a hash behind that the next login cleans up
		if err = s.deps.Secondary.Revoke(sess, username); err != nil {
			log.Error().Err(err).Str("username", username).Msg("failed to revoke secondary password")
		}

		log.Info().Str("username", username).Msg("logged out")
	}

	if err = sess.Destroy(); err != nil {
		log.Error().Err(err).Msg("failed to destroy session")
	}

	return c.Redirect(handler.LoginPath)
}
