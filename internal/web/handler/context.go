package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/okupy/okupy/internal/auth"
)

// CurrentUser returns the identity the auth middleware resolved, or nil for
// anonymous requests.
func CurrentUser(c *fiber.Ctx) *auth.Result {
	res, _ := c.Locals(LocalsResult).(*auth.Result)

	return res
}

// Session returns the session the auth middleware loaded, falling back to the
// store when the middleware did not run.
func Session(c *fiber.Ctx, store *session.Store) (*session.Session, error) {
	if sess, ok := c.Locals(LocalsSession).(*session.Session); ok {
		return sess, nil
	}

	sess, err := store.Get(c)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	c.Locals(LocalsSession, sess)

	return sess, nil
}
