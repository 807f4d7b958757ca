// Package login provides the login endpoints: the login form, certificate
// login through the TLS terminating proxy and one-time SSH login links.
package login

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
	"github.com/okupy/okupy/internal/web/handler"
	websession "github.com/okupy/okupy/internal/web/session"
)

const (
	// Path is the path to the login page.
	Path = handler.LoginPath

	// SSLPath logs in with the client certificate forwarded by the proxy.
	SSLPath = Path + "/ssl"

	// SSHPath redeems a login link handed out by the SSH listener.
	SSHPath = Path + "/ssh"

	view = "login"
)

// Form is the login form.
type Form struct {
	Username string `form:"username" validate:"required,max=100"`
	Password string `form:"password" validate:"required,max=1024"`
}

// Service is the login handler service.
type Service struct {
	handler.Service
	deps     *handler.Deps
	validate *handler.Validator
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.deps = deps
	s.validate = handler.NewValidator()

	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RootPath, s.Get)
		router.Post(handler.RootPath, s.Post)
		router.Get("/ssl", s.SSL)
		router.Get("/ssh/:token", s.SSH)
	})

	return nil
}

// Get renders the login page.
func (s *Service) Get(c *fiber.Ctx) error {
	if handler.CurrentUser(c) != nil {
		return c.Redirect(handler.RootPath)
	}

	return s.render(c, fiber.StatusOK, "")
}

// Post handles the login form submission.
func (s *Service) Post(c *fiber.Ctx) error {
	if handler.CurrentUser(c) != nil {
		return c.Redirect(handler.RootPath)
	}

	form := new(Form)
	if err := c.BodyParser(form); err != nil {
		return s.render(c, fiber.StatusOK, handler.MsgLoginFailed)
	}

	if failed := s.validate.Validate(form); len(failed) > 0 {
		return s.render(c, fiber.StatusOK, handler.MsgLoginFailed)
	}

	creds := s.proxyCredentials(c)
	creds.Username = form.Username
	creds.Password = form.Password

	res, err := s.deps.Resolver.Authenticate(creds)
	if err != nil {
		return s.fail(c, err)
	}

	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		return s.fail(c, err)
	}

	if err = websession.Login(sess, res); err != nil {
		return s.fail(c, err)
	}

	if res.Identity.Source == identity.SourcePassword {
		if err = s.deps.Secondary.Establish(sess, res.Identity.Username, form.Password); err != nil {
			s.abandon(sess)

			return s.fail(c, err)
		}
	}

	return s.finish(c, sess)
}

// SSL logs in with the client certificate forwarded by the proxy.
func (s *Service) SSL(c *fiber.Ctx) error {
	if !s.deps.Cfg.Auth.TrustProxyCertHeaders {
		return fiber.ErrNotFound
	}

	if handler.CurrentUser(c) != nil {
		return c.Redirect(handler.RootPath)
	}

	res, err := s.deps.Resolver.Authenticate(s.proxyCredentials(c))
	if err != nil {
		return s.fail(c, err)
	}

	return s.login(c, res)
}

// SSH redeems a one-time login link.
func (s *Service) SSH(c *fiber.Ctx) error {
	if s.deps.Tokens == nil {
		return fiber.ErrNotFound
	}

	claims, err := s.deps.Tokens.Parse(c.Params("token"))
	if err != nil {
		log.Info().Err(err).Msg("rejected ssh login token")

		return s.render(c, fiber.StatusOK, handler.MsgLoginFailed)
	}

	fresh, err := websession.ConsumeToken(s.deps.Sessions, claims.ID, s.deps.Tokens.TTL())
	if err != nil {
		return s.fail(c, err)
	}

	if !fresh {
		log.Warn().Str("username", claims.Subject).Msg("ssh login token replayed")

		return s.render(c, fiber.StatusOK, handler.MsgLoginFailed)
	}

	res, err := s.deps.Resolver.Authenticate(&auth.Credentials{SessionUserID: claims.UserID})
	if err != nil {
		return s.fail(c, err)
	}

	res.Identity.Source = identity.SourceSSHKey

	return s.login(c, res)
}

// login opens a session for res.
func (s *Service) login(c *fiber.Ctx, res *auth.Result) error {
	sess, err := handler.Session(c, s.deps.Sessions)
	if err != nil {
		return s.fail(c, err)
	}

	if err = websession.Login(sess, res); err != nil {
		return s.fail(c, err)
	}

	return s.finish(c, sess)
}

func (s *Service) finish(c *fiber.Ctx, sess *session.Session) error {
	if err := sess.Save(); err != nil {
		return s.fail(c, err)
	}

	return c.Redirect(handler.RootPath)
}

// abandon drops a half opened session.
func (s *Service) abandon(sess *session.Session) {
	if err := sess.Destroy(); err != nil {
		log.Error().Err(err).Msg("failed to destroy session")
	}
}

// fail renders the message matching err. Only credential failures say so,
// everything else is a service error.
func (s *Service) fail(c *fiber.Ctx, err error) error {
	if errors.Is(err, auth.ErrAuthenticationFailed) || errors.Is(err, directory.ErrBindRejected) {
		return s.render(c, fiber.StatusOK, handler.MsgLoginFailed)
	}

	log.Error().Err(err).Msg("login failed on infrastructure error")

	return s.render(c, fiber.StatusServiceUnavailable, handler.MsgServiceUnavailable)
}

func (s *Service) render(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render(view, fiber.Map{
		"Title":       s.deps.Cfg.Title,
		"error":       message,
		"ssl_enabled": s.deps.Cfg.Auth.TrustProxyCertHeaders,
	}, handler.BaseLayout)
}

// proxyCredentials reads the client certificate headers when the proxy is trusted.
func (s *Service) proxyCredentials(c *fiber.Ctx) *auth.Credentials {
	creds := &auth.Credentials{TLSVerify: auth.TLSVerifyNone}

	cfg := s.deps.Cfg.Auth
	if !cfg.TrustProxyCertHeaders {
		return creds
	}

	creds.TLSVerify = auth.ParseTLSVerify(c.Get(cfg.CertVerifyHeader))

	if raw := c.Get(cfg.CertHeader); raw != "" {
		pem, err := url.PathUnescape(raw)
		if err != nil {
			log.Info().Err(err).Msg("ignoring malformed client certificate header")

			creds.TLSVerify = auth.TLSVerifyFailure

			return creds
		}

		creds.Certificate = pem
	}

	return creds
}
