// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/pwhash"
)

// EnvJSON holds a JSON document merged over the TOML configuration.
const EnvJSON = "OKUPY_CONFIG_JSON"

const (
	defaultShutDownTime  = 5
	defaultSessionExpiry = 12 * time.Hour
	defaultTokenTTL      = 5 * time.Minute
	defaultCookieName    = "session"
	defaultSessionTable  = "sessions"
	defaultVerifyHeader  = "X-SSL-Client-Verify"
	defaultCertHeader    = "X-SSL-Client-Cert"
)

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	if _, err = toml.DecodeFile(path+"main.toml", &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	// override it from env
	JSONConfigEnv = os.Getenv(EnvJSON)

	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	return c, validate(&c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read "+EnvJSON)
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate checks the settings the portal can not start without and fills
// in defaults for the optional ones.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = defaultShutDownTime
	}

	if err := validateSession(&c.Webserver.Session); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	if c.LDAP.BaseDN == "" {
		return errors.Wrap(ErrEmptyBaseDN, invalidErrMessage)
	}

	if !strings.Contains(c.LDAP.UserDNTemplate, directory.UsernamePlaceholder) {
		return errors.Wrap(ErrInvalidUserDNTemplate, invalidErrMessage)
	}

	c.LDAP.SetDefaults()

	if err := validateAuth(&c.Auth); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	if c.SSH.Enabled && c.SSH.Listen == "" {
		return errors.Wrap(ErrEmptySSHListen, invalidErrMessage)
	}

	if c.SSH.TokenTTL == 0 {
		c.SSH.TokenTTL = defaultTokenTTL
	}

	return nil
}

func validateSession(s *Session) error {
	if s.ExpiryTime == 0 {
		s.ExpiryTime = defaultSessionExpiry
	}

	if s.CookieName == "" {
		s.CookieName = defaultCookieName
	}

	if s.Table == "" {
		s.Table = defaultSessionTable
	}

	switch s.Storage {
	case "":
		s.Storage = "memory"
	case "memory", "mysql", "postgres":
	default:
		return ErrUnknownSessionStorage
	}

	return nil
}

func validateAuth(a *Auth) error {
	if a.Secret == "" {
		return ErrEmptyAuthSecret
	}

	if _, err := pwhash.New(pwhash.Scheme(a.HashScheme)); err != nil {
		return err //nolint: wrapcheck
	}

	if a.CertVerifyHeader == "" {
		a.CertVerifyHeader = defaultVerifyHeader
	}

	if a.CertHeader == "" {
		a.CertHeader = defaultCertHeader
	}

	return nil
}
