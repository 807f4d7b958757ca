package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrEmptyAuthSecret error if config auth.secret is empty.
	ErrEmptyAuthSecret = errors.New("toml config auth.secret can not be empty")

	// ErrInvalidUserDNTemplate error if config ldap.userdntemplate lacks the username placeholder.
	ErrInvalidUserDNTemplate = errors.New("toml config ldap.userdntemplate must contain {username}")

	// ErrEmptyBaseDN error if config ldap.basedn is empty.
	ErrEmptyBaseDN = errors.New("toml config ldap.basedn can not be empty")

	// ErrUnknownSessionStorage error if config webserver.session.storage is not supported.
	ErrUnknownSessionStorage = errors.New("toml config webserver.session.storage must be memory, mysql or postgres")

	// ErrEmptySSHListen error if the ssh listener is enabled without an address.
	ErrEmptySSHListen = errors.New("toml config ssh.listen can not be empty when ssh is enabled")
)
