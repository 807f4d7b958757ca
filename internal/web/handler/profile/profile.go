// Package profile lets users edit their directory entry.
//
// Writes bind as the user. The secondary password of the session is used when
// there is one; otherwise the page asks for the password and establishes a new
// secondary password with it.
package profile

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/secondary"
	"github.com/okupy/okupy/internal/web/handler"
	"github.com/okupy/okupy/internal/web/navigation"
)

const (
	// Path is the profile page.
	Path = handler.RootPath + "profile"

	// TemplateName is the name of the profile template.
	TemplateName = "profile"

	msgPasswordRequired = "Please enter your password to save your changes"
	msgWrongPassword    = "Wrong password"
	msgConflict         = "Your entry was changed elsewhere, please try again"
	msgInvalid          = "Please correct the highlighted errors"
	msgSaved            = "Profile updated"
)

// Form is the profile form. Email is only applied for privileged users.
type Form struct {
	DisplayName string `form:"display_name" validate:"required,max=255"`
	FirstName   string `form:"first_name"   validate:"max=100"`
	LastName    string `form:"last_name"    validate:"required,max=100"`
	Email       string `form:"email"        validate:"omitempty,email,max=255"`
	Password    string `form:"password"     validate:"max=1024"`
}

// Service is the profile handler service.
type Service struct {
	handler.Service
	deps      *handler.Deps
	validator *handler.Validator
}

// Handler is the profile handler.
var Handler = Service{}

// Init initializes the profile handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.deps = deps
	s.validator = handler.NewValidator()

	app.Get(Path, s.Get)
	app.Post(Path, s.Post)

	return nil
}

// Get renders the profile form filled from the shadow record.
func (s *Service) Get(c *fiber.Ctx) error {
	res := handler.CurrentUser(c)
	if res == nil {
		return c.Redirect(handler.LoginPath)
	}

	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		return fiber.ErrServiceUnavailable
	}

	form := &Form{
		DisplayName: res.User.DisplayName,
		FirstName:   res.User.FirstName,
		LastName:    res.User.LastName,
		Email:       res.User.Email,
	}

	return s.render(c, fiber.StatusOK, res, form, fiber.Map{
		"NeedPassword": s.needsPassword(sess),
	})
}

// Post writes the profile to the directory.
func (s *Service) Post(c *fiber.Ctx) error {
	res := handler.CurrentUser(c)
	if res == nil {
		return c.Redirect(handler.LoginPath)
	}

	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		return fiber.ErrServiceUnavailable
	}

	form := new(Form)
	if err = c.BodyParser(form); err != nil {
		return s.render(c, fiber.StatusBadRequest, res, form, fiber.Map{"Error": msgInvalid})
	}

	form.normalize()

	if failed := s.validator.Validate(form); len(failed) > 0 {
		return s.render(c, fiber.StatusBadRequest, res, form, fiber.Map{
			"Error":        msgInvalid,
			"FieldErrors":  failed,
			"NeedPassword": s.needsPassword(sess),
		})
	}

	privileged := res.Identity.InAnyGroup(s.deps.Cfg.Auth.PrivilegedGroups)
	if !privileged {
		form.Email = res.User.Email
	}

	err = s.write(sess, res, form, privileged)

	switch {
	case errors.Is(err, secondary.ErrSecondaryCredentialUnavailable):
		return s.render(c, fiber.StatusOK, res, form, fiber.Map{
			"Error":        msgPasswordRequired,
			"NeedPassword": true,
		})
	case errors.Is(err, directory.ErrBindRejected):
		return s.render(c, fiber.StatusOK, res, form, fiber.Map{
			"Error":        msgWrongPassword,
			"NeedPassword": true,
		})
	case errors.Is(err, directory.ErrConflict):
		return s.render(c, fiber.StatusConflict, res, form, fiber.Map{"Error": msgConflict})
	case err != nil:
		log.Error().Err(err).Str("username", res.User.Username).Msg("failed to save profile")

		return s.render(c, fiber.StatusServiceUnavailable, res, form, fiber.Map{
			"Error": handler.MsgServiceUnavailable,
		})
	}

	updated := *res.Identity
	updated.DisplayName = form.DisplayName
	updated.FirstName = form.FirstName
	updated.LastName = form.LastName
	updated.Email = form.Email

	if err = shadowuser.UpdateProfile(s.deps.DB, res.User.ID, &updated); err != nil {
		log.Error().Err(err).Str("username", res.User.Username).Msg("failed to update shadow user")
	}

	// the explicit password proves the primary again, so the session gets a
	// new secondary password for the next edit
	if form.Password != "" {
		if err = s.deps.Secondary.Establish(sess, res.User.Username, form.Password); err != nil {
			log.Error().Err(err).Str("username", res.User.Username).Msg("failed to establish secondary password")
		} else if err = sess.Save(); err != nil {
			log.Error().Err(err).Msg("failed to save session")
		}
	}

	log.Info().Str("username", res.User.Username).Msg("profile updated")

	form.Password = ""

	return s.render(c, fiber.StatusOK, res, form, fiber.Map{
		"Success":      msgSaved,
		"NeedPassword": s.needsPassword(sess),
	})
}

// write binds as the user and saves the form to the directory entry.
func (s *Service) write(sess *session.Session, res *auth.Result, form *Form, privileged bool) error {
	h, err := s.deps.Secondary.BoundIdentity(sess, res.User.Username, form.Password)
	if err != nil {
		return err
	}
	defer h.Close()

	entry, err := h.Load()
	if err != nil {
		return err
	}

	cfg := s.deps.Cfg.LDAP

	entry.SetValues(cfg.DisplayNameAttr, nonEmpty(form.DisplayName))
	entry.SetValues(cfg.FirstNameAttr, nonEmpty(form.FirstName))
	entry.SetValues(cfg.LastNameAttr, nonEmpty(form.LastName))

	if privileged {
		entry.SetValues(cfg.EmailAttr, nonEmpty(form.Email))
	}

	return h.Save(entry)
}

func (s *Service) needsPassword(sess *session.Session) bool {
	_, err := s.deps.Secondary.Retrieve(sess)

	return err != nil
}

func (s *Service) render(c *fiber.Ctx, status int, res *auth.Result, form *Form, extra fiber.Map) error {
	data := fiber.Map{
		"Title":       s.deps.Cfg.Title,
		"Navigation":  navigation.NewContext("Profile", navigation.PageProfile),
		"User":        res.User,
		"Form":        form,
		"Privileged":  res.Identity.InAnyGroup(s.deps.Cfg.Auth.PrivilegedGroups),
		"Source":      string(res.Identity.Source),
		"FieldErrors": map[string]handler.FieldError{},
	}

	for k, v := range extra {
		data[k] = v
	}

	return c.Status(status).Render(TemplateName, data, handler.BaseLayout)
}

func (f *Form) normalize() {
	f.DisplayName = strings.TrimSpace(f.DisplayName)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
}

func nonEmpty(value string) []string {
	if value == "" {
		return nil
	}

	return []string{value}
}
