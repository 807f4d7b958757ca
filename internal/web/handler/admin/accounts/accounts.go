// Package accounts lets members of the privileged groups list the shadow
// users and disable or enable them.
package accounts

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/web/handler"
	"github.com/okupy/okupy/internal/web/middleware/auth"
	"github.com/okupy/okupy/internal/web/navigation"
)

const (
	// Path is the base path of the account list.
	Path = handler.RootPath + "admin/accounts"

	// TemplateList is the template for listing accounts.
	TemplateList = "admin/accounts"

	// DefaultPageSize for pagination.
	DefaultPageSize = 25

	maxPageSize = 100
)

// Service lists and toggles shadow users.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.deps = deps

	privileged := auth.RequireGroups(func() []string {
		return s.deps.Cfg.Auth.PrivilegedGroups
	})

	app.Get(Path, privileged, s.List)
	app.Post(Path+"/:id/active", privileged, s.SetActive)

	return nil
}

// List shows shadow users with simple pagination and search.
func (s *Service) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	pageSize := c.QueryInt("pageSize", DefaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = DefaultPageSize
	}

	search := c.Query("search", "")

	users, total, err := shadowuser.List(s.deps.DB, search, page, pageSize)
	if err != nil {
		log.Error().Err(err).Msg("list shadow users failed")

		return s.render(c, fiber.StatusServiceUnavailable, fiber.Map{
			"Error":  handler.MsgServiceUnavailable,
			"Search": search,
		})
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages == 0 {
		totalPages = 1
	}

	return s.render(c, fiber.StatusOK, fiber.Map{
		"Users":      users,
		"Search":     search,
		"Page":       page,
		"PageSize":   pageSize,
		"TotalItems": total,
		"TotalPages": totalPages,
		"HasPrev":    page > 1,
		"HasNext":    page < totalPages,
		"PrevPage":   page - 1,
		"NextPage":   page + 1,
		"Error":      c.Query("error"),
	})
}

// SetActive disables or enables an account. Users can not disable themselves.
func (s *Service) SetActive(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return fiber.ErrNotFound
	}

	active := c.FormValue("active") == "true"
	current := handler.CurrentUser(c)

	if current.User.ID == id && !active {
		return c.Redirect(Path + "?error=" + url.QueryEscape("You cannot disable your own account"))
	}

	if err = shadowuser.SetActive(s.deps.DB, id, active); err != nil {
		if errors.Is(err, shadowuser.ErrUserNotFound) {
			return fiber.ErrNotFound
		}

		log.Error().Err(err).Uint64("user_id", id).Msg("failed to update shadow user")

		return fiber.ErrServiceUnavailable
	}

	log.Info().
		Uint64("user_id", id).
		Bool("active", active).
		Str("by", current.User.Username).
		Msg("account state changed")

	return c.Redirect(Path)
}

func (s *Service) render(c *fiber.Ctx, status int, data fiber.Map) error {
	current := handler.CurrentUser(c)

	data["Title"] = s.deps.Cfg.Title
	data["Navigation"] = navigation.NewContext("Accounts", navigation.PageAccounts)
	data["User"] = current.User
	data["Privileged"] = true
	data["CurrentUserID"] = current.User.ID

	return c.Status(status).Render(TemplateList, data, handler.BaseLayout)
}
