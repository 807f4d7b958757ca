// Package identity holds the authenticated principal shared by the resolver,
// the shadow store and the web layer.
package identity

import "strings"

// Source tells which credential source produced an Identity.
type Source string

const (
	// SourceCertificate is a TLS client certificate verified by the proxy.
	SourceCertificate Source = "certificate"
	// SourceSSHKey is an SSH public key offered to the SSH login listener.
	SourceSSHKey Source = "ssh_key"
	// SourcePassword is a username and password bound against the directory.
	SourcePassword Source = "password"
	// SourceSession is an identity restored from an existing session.
	SourceSession Source = "session"
)

// Identity is an authenticated principal.
type Identity struct {
	Username    string
	DN          string
	DisplayName string
	FirstName   string
	LastName    string
	Email       string
	// Groups are the directory ACL group memberships.
	Groups []string
	Source Source
}

// Normalize strips surrounding whitespace from a username.
func Normalize(username string) string {
	return strings.TrimSpace(username)
}

// Key returns the case-folded form used to compare usernames.
func Key(username string) string {
	return strings.ToLower(Normalize(username))
}

// SameUser reports whether two usernames name the same principal.
func SameUser(a, b string) bool {
	return Key(a) == Key(b)
}

// InAnyGroup reports whether the identity belongs to one of groups.
func (i *Identity) InAnyGroup(groups []string) bool {
	for _, want := range groups {
		for _, have := range i.Groups {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}

	return false
}
