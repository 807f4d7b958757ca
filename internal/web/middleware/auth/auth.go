package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/auth"
	accesslog "github.com/okupy/okupy/internal/logger/adapter/fiber"
	"github.com/okupy/okupy/internal/web/handler"
	websession "github.com/okupy/okupy/internal/web/session"
)

// publicPrefixes are reachable without a session.
var publicPrefixes = []string{ //nolint:gochecknoglobals
	"/static",
	"/metrics",
	"/healthz",
	"/logout",
	handler.LoginPath,
}

// New returns a middleware restoring the identity of the session and sending
// anonymous requests for private pages to the login page.
func New(resolver *auth.Resolver, store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := strings.ToLower(c.Path())

		if strings.HasPrefix(path, "/static") || path == "/metrics" || path == "/healthz" {
			return c.Next()
		}

		sess, err := handler.Session(c, store)
		if err != nil {
			log.Error().Err(err).Msg("failed to load session")

			return fiber.ErrServiceUnavailable
		}

		if userID := websession.UserID(sess); userID != 0 {
			res, errResolve := resolver.Resolve(&auth.Credentials{SessionUserID: userID})
			if errResolve != nil {
				log.Error().Err(errResolve).Uint64("user_id", userID).Msg("failed to restore session identity")

				return fiber.ErrServiceUnavailable
			}

			if res != nil {
				c.Locals(handler.LocalsResult, res)
				c.Locals(accesslog.LocalsUsername, res.User.Username)
			} else {
				// the shadow record is gone or disabled
				if errDestroy := sess.Destroy(); errDestroy != nil {
					log.Error().Err(errDestroy).Msg("failed to destroy session")
				}
			}
		}

		if handler.CurrentUser(c) == nil && !IsPublic(path) {
			return c.Redirect(handler.LoginPath)
		}

		return c.Next()
	}
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	path = strings.ToLower(path)

	for _, prefix := range publicPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	return false
}

// RequireGroups answers 403 unless the current user is in one of the groups
// returned by groups. It must run after New.
func RequireGroups(groups func() []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := handler.CurrentUser(c)
		if res == nil {
			return c.Redirect(handler.LoginPath)
		}

		if !res.Identity.InAnyGroup(groups()) {
			log.Warn().Str("username", res.User.Username).Str("path", c.Path()).Msg("privileged page refused")

			return fiber.ErrForbidden
		}

		return c.Next()
	}
}
