package config

import (
	"time"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/logger"
)

// Session settings.
type Session struct {
	ExpiryTime time.Duration // idle lifetime of a session
	CookieName string        // defaults to "session"
	Storage    string        // memory, mysql or postgres
	Table      string        // table of the sql session storages
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	LDAP      directory.Config
	Auth      Auth
	SSH       SSH
}

// Webserver implement webserver settings.
type Webserver struct {
	BrowseStatic        bool    // enable static file browsing (for development purposes only)
	DisableRecover      bool    // disable recover middleware
	Domain              string  // domain name for the webserver
	Port                int     // listening port for the webserver
	ShutDownTime        int     // wait time for shutdown
	URL                 string  // base url for the webserver
	CookieEncryptionKey string  // base64 key for cookie encryption, empty disables it
	Session             Session // session settings
}

// Auth holds the credential handling settings.
type Auth struct {
	// Secret derives the key sealing secondary passwords and signs SSH login tokens.
	Secret string
	// Argon2Salt is mixed into the key derivation of Secret.
	Argon2Salt string
	// HashScheme is the scheme new directory password hashes are written in:
	// md5-crypt, sha512-crypt or argon2id.
	HashScheme string
	// TrustProxyCertHeaders accepts the client certificate forwarded by the
	// TLS terminating proxy. Only enable behind a proxy that strips them.
	TrustProxyCertHeaders bool
	// CertVerifyHeader carries SUCCESS, NONE or FAILURE.
	CertVerifyHeader string
	// CertHeader carries the URL-escaped PEM client certificate.
	CertHeader string
	// PrivilegedGroups may edit the privileged profile fields.
	PrivilegedGroups []string
}

// SSH holds the settings of the SSH login listener.
type SSH struct {
	Enabled     bool
	Listen      string        // e.g. ":2222"
	HostKeyPath string        // PEM private key, generated when missing
	TokenTTL    time.Duration // lifetime of the login URL token
}
