package auth

import (
	"strings"

	"golang.org/x/crypto/ssh"
)

// TLSVerify is the client certificate verification status reported by the
// TLS terminating proxy.
type TLSVerify string

const (
	// TLSVerifySuccess means the proxy verified the client certificate.
	TLSVerifySuccess TLSVerify = "SUCCESS"
	// TLSVerifyNone means no client certificate was presented.
	TLSVerifyNone TLSVerify = "NONE"
	// TLSVerifyFailure means a certificate was presented and rejected.
	TLSVerifyFailure TLSVerify = "FAILURE"
)

// ParseTLSVerify maps a proxy header value to a TLSVerify. nginx reports
// failures as "FAILED:<reason>".
func ParseTLSVerify(value string) TLSVerify {
	value = strings.ToUpper(strings.TrimSpace(value))

	switch {
	case value == string(TLSVerifySuccess):
		return TLSVerifySuccess
	case value == "", value == string(TLSVerifyNone):
		return TLSVerifyNone
	default:
		return TLSVerifyFailure
	}
}

// Credentials is everything a request may carry to prove who it comes from.
// Zero values mean the source is absent.
type Credentials struct {
	// TLSVerify and Certificate come from the proxy. Certificate is PEM.
	TLSVerify   TLSVerify
	Certificate string

	// SSHKey is the public key offered to the SSH login listener.
	SSHKey ssh.PublicKey

	Username string
	Password string

	// SessionUserID is the shadow user ID of an authenticated session.
	SessionUserID uint64
}
