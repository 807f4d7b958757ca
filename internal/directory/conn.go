package directory

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// Conn is the subset of *ldap.Conn the directory needs.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(modifyRequest *ldap.ModifyRequest) error
	Close() error
}

var _ Conn = &ldap.Conn{}

// Dialer opens a new connection to the directory.
type Dialer interface {
	Dial() (Conn, error)
}

// DialerFunc makes it easy to use a func as a Dialer.
type DialerFunc func() (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial() (Conn, error) {
	return f()
}

// NewDialer returns the production Dialer for cfg.
func NewDialer(cfg *Config) Dialer {
	return DialerFunc(func() (Conn, error) {
		return connect(cfg)
	})
}

// connect establishes a connection to the LDAP server.
func connect(cfg *Config) (Conn, error) {
	hostPort := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var ldapURL string
	if cfg.UseSSL {
		ldapURL = "ldaps://" + hostPort
	} else {
		ldapURL = "ldap://" + hostPort
	}

	var tlsConfig *tls.Config
	if cfg.UseSSL || cfg.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipVerify, //nolint:gosec // opt-in for test setups
			ServerName:         cfg.Host,
		}
	}

	timeout := time.Duration(cfg.Timeout) * time.Second

	conn, err := ldap.DialURL(ldapURL,
		ldap.DialWithTLSConfig(tlsConfig),
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if !cfg.UseSSL && cfg.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			closeConn(conn)

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	if timeout > 0 {
		conn.SetTimeout(timeout)
	}

	return conn, nil
}

func closeConn(conn Conn) {
	if err := conn.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close LDAP connection")
	}
}
