// Package daemon builds the portal from its configuration and runs it.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	sessionpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okupy/okupy/internal/alert"
	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/credcipher"
	"github.com/okupy/okupy/internal/db/dsn"
	"github.com/okupy/okupy/internal/db/models"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/logger/adapter/stdlogger"
	"github.com/okupy/okupy/internal/pwhash"
	"github.com/okupy/okupy/internal/secondary"
	"github.com/okupy/okupy/internal/sshd"
	"github.com/okupy/okupy/internal/web"
	"github.com/okupy/okupy/internal/web/handler"
	"github.com/okupy/okupy/internal/web/session"
)

// ErrUnknownGormEngine is returned for a DB.GormEngine other than mysql,
// postgres or sqlite.
var ErrUnknownGormEngine = errors.New("db gorm engine must be mysql, postgres or sqlite")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
	sshServer  *sshd.Server
}

// Start runs the SSH login listener when enabled and the web service, and
// blocks until SIGINT or SIGTERM.
func (d *Daemon) Start() error {
	if d.sshServer != nil {
		go func() {
			if err := d.sshServer.ListenAndServe(d.cfg.SSH.Listen); err != nil {
				log.Fatal().Err(err).Msg("ssh login listener failed")
			}
		}()
	}

	go func() {
		addr := net.JoinHostPort("", strconv.Itoa(d.cfg.Webserver.Port))
		if err := d.webService.Start(addr); err != nil {
			log.Fatal().Err(err).Msg("web service failed")
		}
	}()

	d.webService.WaitShutdown()

	if d.sshServer != nil {
		if err := d.sshServer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to stop ssh login listener")
		}
	}

	return nil
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}

	if err = db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	dir, err := directory.New(&cfg.LDAP, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to set up directory: %w", err)
	}

	cipher, err := credcipher.New(cfg.Auth.Secret, cfg.Auth.Argon2Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to set up credential cipher: %w", err)
	}

	hasher, err := pwhash.New(pwhash.Scheme(cfg.Auth.HashScheme))
	if err != nil {
		return nil, fmt.Errorf("failed to set up password hasher: %w", err)
	}

	storage, err := NewSessionStorage(cfg)
	if err != nil {
		return nil, err
	}

	deps := &handler.Deps{
		Cfg:       cfg,
		DB:        db,
		Resolver:  auth.NewResolver(dir, db, alert.LogNotifier{}),
		Secondary: secondary.New(dir, cipher, hasher),
		Sessions:  session.New(storage, cfg),
	}

	d := &Daemon{cfg: cfg}

	if cfg.SSH.Enabled {
		if deps.Tokens, err = auth.NewTokenIssuer(cfg.Auth.Secret, cfg.SSH.TokenTTL); err != nil {
			return nil, fmt.Errorf("failed to set up login tokens: %w", err)
		}

		hostKey, errKey := sshd.LoadHostKey(cfg.SSH.HostKeyPath)
		if errKey != nil {
			return nil, errKey
		}

		d.sshServer = sshd.New(deps.Resolver, deps.Tokens, cfg.Webserver.URL, hostKey)
	}

	d.webService = web.New(deps)
	d.webService.SetFastShutdown(cfg.DevMode)

	return d, nil
}

// OpenDB opens the shadow user database selected by DB.GormEngine.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DB.GormEngine {
	case "", "mysql":
		dialector = gormmysql.Open(dsn.Create(cfg))
	case "postgres":
		dialector = gormpostgres.Open(dsn.CreatePostgres(cfg))
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.Name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGormEngine, cfg.DB.GormEngine)
	}

	level := gormlogger.Warn
	if cfg.DevMode {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(stdlogger.New("gorm"), gormlogger.Config{
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return db, nil
}

// NewSessionStorage returns the session storage selected by
// Webserver.Session.Storage. Memory storage is returned as nil, the session
// store creates it.
func NewSessionStorage(cfg *config.Config) (fiber.Storage, error) {
	s := cfg.Webserver.Session

	switch s.Storage {
	case "", "memory":
		return nil, nil //nolint:nilnil
	case "mysql":
		return sessionmysql.New(sessionmysql.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         s.Table,
		}), nil
	case "postgres":
		return sessionpostgres.New(sessionpostgres.Config{
			ConnectionURI: dsn.CreatePostgres(cfg),
			Table:         s.Table,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSessionStorage, s.Storage)
	}
}

// CheckDirectory binds with the service account to see whether the directory
// answers.
func CheckDirectory(cfg *config.Config) error {
	dir, err := directory.New(&cfg.LDAP, nil)
	if err != nil {
		return err
	}

	return dir.Ping()
}
