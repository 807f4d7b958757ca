package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/secondary"
)

// Deps are the collaborators shared by the web handlers.
type Deps struct {
	Cfg       *config.Config
	DB        *gorm.DB
	Resolver  *auth.Resolver
	Secondary *secondary.Manager
	Sessions  *session.Store
	// Tokens is nil when SSH login is disabled.
	Tokens *auth.TokenIssuer
}

// Valid reports whether the mandatory collaborators are set.
func (d *Deps) Valid() bool {
	return d != nil && d.Cfg != nil && d.DB != nil && d.Resolver != nil && d.Secondary != nil && d.Sessions != nil
}

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, deps *Deps) error
}
