// Package directory binds to the LDAP directory on behalf of users and reads or
// writes their entries.
//
// Every user bind happens under an alias derived from the username (see Alias).
// A new bind under an alias supersedes the previous handle for it, so two
// requests for different users never share a connection and a stale handle for
// the same user can not keep writing.
package directory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"github.com/okupy/okupy/internal/identity"
)

const aliasPrefix = "ldap_"

// Directory is the entry point for binds and service searches.
type Directory struct {
	cfg    *Config
	dialer Dialer

	mu      sync.Mutex
	handles map[string]*Handle
}

// New validates cfg and returns a Directory. A nil dialer selects the network dialer.
func New(cfg *Config, dialer Dialer) (*Directory, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if !strings.Contains(cfg.UserDNTemplate, UsernamePlaceholder) {
		return nil, ErrInvalidDNTemplate
	}

	cfg.SetDefaults()

	if dialer == nil {
		dialer = NewDialer(cfg)
	}

	return &Directory{
		cfg:     cfg,
		dialer:  dialer,
		handles: make(map[string]*Handle),
	}, nil
}

// Config returns the directory configuration.
func (d *Directory) Config() *Config {
	return d.cfg
}

// Alias returns the bind alias for username.
func Alias(username string) string {
	return aliasPrefix + identity.Key(username)
}

// UserDN returns the DN of username's entry.
func (d *Directory) UserDN(username string) string {
	return strings.ReplaceAll(d.cfg.UserDNTemplate, UsernamePlaceholder, ldap.EscapeDN(identity.Normalize(username)))
}

// Bind authenticates as username and returns a handle registered under alias.
func (d *Directory) Bind(alias, username string, password []byte) (*Handle, error) {
	username = identity.Normalize(username)

	// an empty password would turn into an unauthenticated bind
	if username == "" || len(password) == 0 {
		return nil, ErrBindRejected
	}

	dn := d.UserDN(username)

	conn, err := d.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	if err = conn.Bind(dn, string(password)); err != nil {
		closeConn(conn)

		return nil, classifyBindError(err)
	}

	h := &Handle{
		alias:    alias,
		dn:       dn,
		username: username,
		conn:     conn,
		dir:      d,
	}

	d.register(h)

	return h, nil
}

func (d *Directory) register(h *Handle) {
	d.mu.Lock()
	old := d.handles[h.alias]
	d.handles[h.alias] = h
	d.mu.Unlock()

	if old != nil {
		old.invalidate()
	}
}

func (d *Directory) release(h *Handle) {
	d.mu.Lock()
	if d.handles[h.alias] == h {
		delete(d.handles, h.alias)
	}
	d.mu.Unlock()
}

// Search runs filter below BaseDN with the service account and returns the
// matching entries. A missing base is not an error.
func (d *Directory) Search(filter string, attributes []string) ([]*Entry, error) {
	conn, err := d.serviceConn()
	if err != nil {
		return nil, err
	}
	defer closeConn(conn)

	searchRequest := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		d.cfg.Timeout,
		false,
		d.userFilter(filter),
		attributes,
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: failed to search: %w", ErrDirectoryUnavailable, err)
	}

	entries := make([]*Entry, 0, len(searchResult.Entries))
	for _, e := range searchResult.Entries {
		entries = append(entries, NewEntry(e))
	}

	return entries, nil
}

// Ping checks that the directory answers and the service account can bind.
func (d *Directory) Ping() error {
	conn, err := d.serviceConn()
	if err != nil {
		return err
	}

	closeConn(conn)

	return nil
}

func (d *Directory) serviceConn() (Conn, error) {
	conn, err := d.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	if d.cfg.BindDN == "" {
		return conn, nil
	}

	if err = conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
		closeConn(conn)

		// a rejected service account is a deployment fault, not a user error
		return nil, fmt.Errorf("%w: failed to bind with service account: %w", ErrDirectoryUnavailable, err)
	}

	return conn, nil
}

func (d *Directory) userFilter(filter string) string {
	if d.cfg.UserObjectClass == "" {
		return filter
	}

	return "(&(objectClass=" + ldap.EscapeFilter(d.cfg.UserObjectClass) + ")" + filter + ")"
}

// EqualityFilter returns (attr=value) with value escaped.
func EqualityFilter(attr, value string) string {
	return "(" + attr + "=" + ldap.EscapeFilter(value) + ")"
}

// PresenceFilter returns (attr=*).
func PresenceFilter(attr string) string {
	return "(" + attr + "=*)"
}
