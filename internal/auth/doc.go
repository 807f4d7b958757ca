// Package auth resolves the identity behind an incoming request.
//
// A Resolver holds an ordered list of probes, one per credential source:
//   - a TLS client certificate verified by the terminating proxy
//   - an SSH public key offered to the SSH login listener
//   - a username and password bound against the directory
//   - an already authenticated session
//
// Resolve asks the probes in that order and stops at the first one that
// returns an identity. A probe whose input is missing from the request returns
// nil. Not finding anyone is a normal outcome, not an error; errors are
// reserved for infrastructure faults such as an unreachable directory, which
// are reported to the alert notifier and never treated as bad credentials.
//
// Every identity produced by a directory-backed probe gets a shadow user
// record and its directory groups mirrored into the database.
//
// Example usage:
//
//	resolver := auth.NewResolver(dir, db, alert.LogNotifier{})
//
//	res, err := resolver.Authenticate(&auth.Credentials{Username: "alice", Password: "secret"})
//	switch {
//	case errors.Is(err, auth.ErrAuthenticationFailed):
//	    // show "Login failed"
//	case err != nil:
//	    // show a generic service error
//	}
package auth
