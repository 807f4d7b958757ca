// Package index renders the account overview.
package index

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/web/handler"
	"github.com/okupy/okupy/internal/web/navigation"
	websession "github.com/okupy/okupy/internal/web/session"
)

const (
	// Path is the path of the overview page.
	Path = handler.RootPath

	// TemplateName is the name of the overview template.
	TemplateName = "index"
)

// Service is the overview handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the overview handler.
var Handler = Service{}

// Init initializes the overview handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.deps = deps

	app.Get(Path, s.Get)

	return nil
}

// Get renders the overview of the logged in account.
func (s *Service) Get(c *fiber.Ctx) error {
	res := handler.CurrentUser(c)
	if res == nil {
		return c.Redirect(handler.LoginPath)
	}

	groups, err := shadowuser.Groups(s.deps.DB, res.User.ID)
	if err != nil {
		log.Error().Err(err).Uint64("user_id", res.User.ID).Msg("failed to load groups")

		return fiber.ErrServiceUnavailable
	}

	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		return fiber.ErrServiceUnavailable
	}

	_, errSecondary := s.deps.Secondary.Retrieve(sess)

	return c.Render(TemplateName, fiber.Map{
		"Title":      s.deps.Cfg.Title,
		"Navigation": navigation.NewContext("Overview", navigation.PageOverview),
		"User":       res.User,
		"Groups":     groups,
		"Privileged": res.Identity.InAnyGroup(s.deps.Cfg.Auth.PrivilegedGroups),
		"Secondary":  errSecondary == nil,
		"Source":     sess.Get(websession.KeySource),
	}, handler.BaseLayout)
}
