// Package directorytest provides an in-memory directory for tests.
package directorytest

import (
	"encoding/hex"
	"errors"
	"net"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-ldap/ldap/v3"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/pwhash"
)

const (
	// BaseDN is the suffix every test entry lives under.
	BaseDN = "o=test"
	// UserDNTemplate places users under ou=people.
	UserDNTemplate = "uid={username},ou=people,o=test"
	// ServiceDN is the service account created by New.
	ServiceDN = "cn=portal,o=test"
	// ServicePassword is ServiceDN's password.
	ServicePassword = "service-secret"
)

var errUnsupportedFilter = errors.New("unsupported filter")

// Server is an in-memory directory. Binds accept plain values and any hash
// pwhash understands. Users may only modify their own entry.
type Server struct {
	mu      sync.Mutex
	entries map[string]*entry
	down    bool

	binds    atomic.Int64
	modifies atomic.Int64

	modifyHook func(dn string)
}

type entry struct {
	dn    string
	attrs map[string][]string
	names map[string]string
}

// New returns a Server holding the service account.
func New() *Server {
	s := &Server{entries: make(map[string]*entry)}
	s.Add(ServiceDN, map[string][]string{
		"objectClass":  {"person"},
		"cn":           {"portal"},
		"userPassword": {ServicePassword},
	})

	return s
}

// Config returns a directory config pointing at this server.
func (s *Server) Config() *directory.Config {
	cfg := &directory.Config{
		Host:           "ldap.test",
		BindDN:         ServiceDN,
		BindPassword:   ServicePassword,
		BaseDN:         BaseDN,
		UserDNTemplate: UserDNTemplate,
	}
	cfg.SetDefaults()

	return cfg
}

// Directory returns a directory.Directory dialing this server.
func (s *Server) Directory() *directory.Directory {
	d, err := directory.New(s.Config(), s.Dialer())
	if err != nil {
		panic(err)
	}

	return d
}

// UserDN returns the DN of username under UserDNTemplate.
func UserDN(username string) string {
	return strings.ReplaceAll(UserDNTemplate, directory.UsernamePlaceholder, username)
}

// AddUser adds a posix-style account with the given attributes on top of the defaults.
func (s *Server) AddUser(username, password string, attrs map[string][]string) {
	all := map[string][]string{
		"objectClass":  {"inetOrgPerson", "posixAccount"},
		"uid":          {username},
		"cn":           {username},
		"sn":           {username},
		"userPassword": {password},
	}
	for k, v := range attrs {
		all[k] = v
	}

	s.Add(UserDN(username), all)
}

// Add stores an entry, replacing any entry at dn.
func (s *Server) Add(dn string, attrs map[string][]string) {
	e := &entry{dn: dn, attrs: make(map[string][]string), names: make(map[string]string)}
	for k, v := range attrs {
		key := strings.ToLower(k)
		e.names[key] = k
		e.attrs[key] = slices.Clone(v)
	}

	s.mu.Lock()
	s.entries[strings.ToLower(dn)] = e
	s.mu.Unlock()
}

// Attr returns a copy of an attribute's values.
func (s *Server) Attr(dn, attr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[strings.ToLower(dn)]
	if !ok {
		return nil
	}

	return slices.Clone(e.attrs[strings.ToLower(attr)])
}

// SetAttr replaces an attribute's values behind the clients' back.
func (s *Server) SetAttr(dn, attr string, values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[strings.ToLower(dn)]
	if !ok {
		return
	}

	key := strings.ToLower(attr)
	if _, ok := e.names[key]; !ok {
		e.names[key] = attr
	}
	e.attrs[key] = slices.Clone(values)
}

// SetDown makes the server refuse new connections and fail open ones.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// Binds returns the number of bind attempts.
func (s *Server) Binds() int64 {
	return s.binds.Load()
}

// Modifies returns the number of modify attempts.
func (s *Server) Modifies() int64 {
	return s.modifies.Load()
}

// SetModifyHook installs fn to run before every modify is applied, so tests
// can change an entry between a client's read and its write.
func (s *Server) SetModifyHook(fn func(dn string)) {
	s.mu.Lock()
	s.modifyHook = fn
	s.mu.Unlock()
}

// Dialer returns a directory.Dialer connecting to this server.
func (s *Server) Dialer() directory.Dialer {
	return directory.DialerFunc(func() (directory.Conn, error) {
		if s.isDown() {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}

		return &conn{server: s}, nil
	})
}

func (s *Server) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.down
}

type conn struct {
	server *Server
	bound  string
	closed bool
}

var _ directory.Conn = &conn{}

func networkError() error {
	return ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
}

func (c *conn) Bind(username, password string) error {
	s := c.server
	s.binds.Add(1)

	if c.closed || s.isDown() {
		return networkError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[strings.ToLower(username)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
	}

	for _, stored := range e.attrs["userpassword"] {
		if stored == password || pwhash.Verify([]byte(password), stored) == pwhash.Match {
			c.bound = e.dn

			return nil
		}
	}

	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	s := c.server
	if c.closed || s.isDown() {
		return nil, networkError()
	}

	f, err := parseFilter(req.Filter)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultFilterError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := strings.ToLower(req.BaseDN)
	if _, ok := s.entries[base]; !ok && req.Scope == ldap.ScopeBaseObject {
		return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := &ldap.SearchResult{}

	for _, k := range keys {
		e := s.entries[k]

		switch req.Scope {
		case ldap.ScopeBaseObject:
			if k != base {
				continue
			}
		default:
			if k != base && !strings.HasSuffix(k, ","+base) {
				continue
			}
		}

		if !f.match(e) {
			continue
		}

		attrs := make(map[string][]string)
		for key, values := range e.attrs {
			if wantAttribute(req.Attributes, key) {
				attrs[e.names[key]] = slices.Clone(values)
			}
		}

		result.Entries = append(result.Entries, ldap.NewEntry(e.dn, attrs))
	}

	return result, nil
}

func wantAttribute(requested []string, key string) bool {
	if len(requested) == 0 {
		return true
	}

	for _, r := range requested {
		if r == "*" || strings.EqualFold(r, key) {
			return true
		}
	}

	return false
}

func (c *conn) Modify(req *ldap.ModifyRequest) error {
	s := c.server
	s.modifies.Add(1)

	if c.closed || s.isDown() {
		return networkError()
	}

	if c.bound == "" || !strings.EqualFold(c.bound, req.DN) {
		return ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("only self-writes are allowed"))
	}

	s.mu.Lock()
	hook := s.modifyHook
	s.mu.Unlock()

	if hook != nil {
		hook(req.DN)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[strings.ToLower(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}

	// work on a copy so a failing change leaves the entry untouched
	attrs := make(map[string][]string, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = slices.Clone(v)
	}

	for _, change := range req.Changes {
		key := strings.ToLower(change.Modification.Type)
		current := attrs[key]

		switch change.Operation {
		case ldap.AddAttribute:
			for _, v := range change.Modification.Vals {
				if slices.Contains(current, v) {
					return ldap.NewError(ldap.LDAPResultAttributeOrValueExists, errors.New("value exists"))
				}
				current = append(current, v)
			}
		case ldap.DeleteAttribute:
			if len(change.Modification.Vals) == 0 {
				current = nil

				break
			}

			for _, v := range change.Modification.Vals {
				i := slices.Index(current, v)
				if i < 0 {
					return ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("no such value"))
				}
				current = slices.Delete(current, i, i+1)
			}
		case ldap.ReplaceAttribute:
			current = slices.Clone(change.Modification.Vals)
		}

		if _, ok := e.names[key]; !ok {
			e.names[key] = change.Modification.Type
		}
		attrs[key] = current
	}

	e.attrs = attrs

	return nil
}

func (c *conn) Close() error {
	c.closed = true

	return nil
}

// filter is the small subset of RFC 4515 the portal sends.
type filter struct {
	op       byte // '&', '|', '=', '*'
	attr     string
	value    string
	children []*filter
}

func (f *filter) match(e *entry) bool {
	switch f.op {
	case '&':
		for _, c := range f.children {
			if !c.match(e) {
				return false
			}
		}

		return true
	case '|':
		for _, c := range f.children {
			if c.match(e) {
				return true
			}
		}

		return false
	case '*':
		return len(e.attrs[f.attr]) > 0
	default:
		for _, v := range e.attrs[f.attr] {
			if strings.EqualFold(v, f.value) {
				return true
			}
		}

		return false
	}
}

func parseFilter(s string) (*filter, error) {
	f, rest, err := parseFilterAt(s)
	if err != nil {
		return nil, err
	}

	if rest != "" {
		return nil, errUnsupportedFilter
	}

	return f, nil
}

func parseFilterAt(s string) (*filter, string, error) {
	if len(s) < 3 || s[0] != '(' {
		return nil, "", errUnsupportedFilter
	}

	switch s[1] {
	case '&', '|':
		f := &filter{op: s[1]}
		rest := s[2:]

		for rest != "" && rest[0] == '(' {
			child, next, err := parseFilterAt(rest)
			if err != nil {
				return nil, "", err
			}
			f.children = append(f.children, child)
			rest = next
		}

		if rest == "" || rest[0] != ')' {
			return nil, "", errUnsupportedFilter
		}

		return f, rest[1:], nil
	}

	end := strings.IndexByte(s, ')')
	if end < 0 {
		return nil, "", errUnsupportedFilter
	}

	attr, value, ok := strings.Cut(s[1:end], "=")
	if !ok {
		return nil, "", errUnsupportedFilter
	}

	attr = strings.ToLower(attr)
	if value == "*" {
		return &filter{op: '*', attr: attr}, s[end+1:], nil
	}

	unescaped, err := unescape(value)
	if err != nil {
		return nil, "", err
	}

	return &filter{op: '=', attr: attr, value: unescaped}, s[end+1:], nil
}

func unescape(s string) (string, error) {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])

			continue
		}

		if i+3 > len(s) {
			return "", errUnsupportedFilter
		}

		decoded, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", errUnsupportedFilter
		}

		b.Write(decoded)
		i += 2
	}

	return b.String(), nil
}
