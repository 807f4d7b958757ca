// Package auth provides authentication middleware for the web application.
//
// The middleware loads the session, asks the resolver to restore the identity
// of an authenticated session from its shadow record and stores it in
// fiber.Locals for handlers and templates. Requests without an identity are
// redirected to the login page unless the path is public.
//
// Usage:
//
//	app.Use(authmiddleware.New(resolver, sessions))
package auth
