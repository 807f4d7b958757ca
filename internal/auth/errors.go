package auth

import "errors"

var (
	// ErrAuthenticationFailed is the only failure shown to users. It never tells
	// which credential source or account state made the attempt fail.
	ErrAuthenticationFailed = errors.New("login failed")

	// ErrInvalidToken is returned for a login token that is malformed, expired
	// or signed with another key.
	ErrInvalidToken = errors.New("invalid login token")

	// ErrEmptySecret is returned by NewTokenIssuer without a signing secret.
	ErrEmptySecret = errors.New("token secret cannot be empty")
)

var errNoPEMBlock = errors.New("no PEM block found")
