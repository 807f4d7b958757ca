package directory

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// Handle is an authenticated connection bound as one user.
type Handle struct {
	alias    string
	dn       string
	username string
	dir      *Directory

	mu    sync.Mutex
	conn  Conn
	stale bool
}

// DN returns the bound DN.
func (h *Handle) DN() string {
	return h.dn
}

// Username returns the normalized username the handle is bound as.
func (h *Handle) Username() string {
	return h.username
}

// Alias returns the alias the handle is registered under.
func (h *Handle) Alias() string {
	return h.alias
}

// Load reads the bound user's own entry.
func (h *Handle) Load() (*Entry, error) {
	return h.LoadDN(h.dn)
}

// LoadDN reads the entry at dn with the bound user's rights, including
// operational attributes such as memberOf.
func (h *Handle) LoadDN(dn string) (*Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stale {
		return nil, ErrStaleHandle
	}

	searchRequest := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		h.dir.cfg.Timeout,
		false,
		"(objectClass=*)",
		[]string{"*", "+"},
		nil,
	)

	searchResult, err := h.conn.Search(searchRequest)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, dn)
		}

		return nil, fmt.Errorf("%w: failed to read entry: %w", ErrDirectoryUnavailable, err)
	}

	if len(searchResult.Entries) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, dn)
	}

	return NewEntry(searchResult.Entries[0]), nil
}

// Save writes the attributes changed since the entry was loaded.
//
// Removed values are deleted and added values are appended in one modify
// operation, so the write fails with ErrConflict when somebody else removed a
// value we expected or already added one we are adding.
func (h *Handle) Save(entry *Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stale {
		return ErrStaleHandle
	}

	modifyRequest := ldap.NewModifyRequest(entry.DN, nil)
	changes := 0

	for _, attr := range entry.changedAttributes() {
		removed, added := diffValues(entry.orig[attr], entry.attrs[attr])
		name := entry.names[attr]

		if len(removed) > 0 {
			modifyRequest.Delete(name, removed)
			changes++
		}

		if len(added) > 0 {
			modifyRequest.Add(name, added)
			changes++
		}
	}

	if changes == 0 {
		return nil
	}

	if err := h.conn.Modify(modifyRequest); err != nil {
		return classifyModifyError(err)
	}

	entry.commit()

	return nil
}

// Close unbinds and unregisters the handle. It is safe to call more than once.
func (h *Handle) Close() {
	h.invalidate()
	h.dir.release(h)
}

func (h *Handle) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stale {
		return
	}

	h.stale = true
	closeConn(h.conn)
}

// Entry is a directory entry with the values it was loaded with, so Save can
// send only the difference.
type Entry struct {
	DN string

	names map[string]string
	attrs map[string][]string
	orig  map[string][]string
}

// NewEntry copies an *ldap.Entry.
func NewEntry(e *ldap.Entry) *Entry {
	entry := &Entry{
		DN:    e.DN,
		names: make(map[string]string, len(e.Attributes)),
		attrs: make(map[string][]string, len(e.Attributes)),
		orig:  make(map[string][]string, len(e.Attributes)),
	}

	for _, a := range e.Attributes {
		key := strings.ToLower(a.Name)
		entry.names[key] = a.Name
		entry.attrs[key] = slices.Clone(a.Values)
		entry.orig[key] = slices.Clone(a.Values)
	}

	return entry
}

// Values returns a copy of the values of attr.
func (e *Entry) Values(attr string) []string {
	return slices.Clone(e.attrs[strings.ToLower(attr)])
}

// Get returns the first value of attr or "".
func (e *Entry) Get(attr string) string {
	values := e.attrs[strings.ToLower(attr)]
	if len(values) == 0 {
		return ""
	}

	return values[0]
}

// SetValues replaces the values of attr locally. Save writes them.
func (e *Entry) SetValues(attr string, values []string) {
	key := strings.ToLower(attr)
	if _, ok := e.names[key]; !ok {
		e.names[key] = attr
	}

	e.attrs[key] = slices.Clone(values)
}

// Changed reports whether any attribute differs from the loaded state.
func (e *Entry) Changed() bool {
	return len(e.changedAttributes()) > 0
}

func (e *Entry) changedAttributes() []string {
	var changed []string

	for key, values := range e.attrs {
		removed, added := diffValues(e.orig[key], values)
		if len(removed) > 0 || len(added) > 0 {
			changed = append(changed, key)
		}
	}

	sort.Strings(changed)

	return changed
}

func (e *Entry) commit() {
	for key, values := range e.attrs {
		e.orig[key] = slices.Clone(values)
	}
}

// diffValues returns the values only in before and the values only in after.
func diffValues(before, after []string) (removed, added []string) {
	for _, v := range before {
		if !slices.Contains(after, v) {
			removed = append(removed, v)
		}
	}

	for _, v := range after {
		if !slices.Contains(before, v) && !slices.Contains(added, v) {
			added = append(added, v)
		}
	}

	return removed, added
}
