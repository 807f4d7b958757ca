package directory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrBindRejected is returned when the directory refuses the credentials.
	// Callers treat it as a failed authentication, not as a fault.
	ErrBindRejected = errors.New("ldap bind rejected")

	// ErrDirectoryUnavailable is returned when the directory can not be reached
	// or fails for reasons unrelated to the credentials.
	ErrDirectoryUnavailable = errors.New("ldap directory unavailable")

	// ErrStaleHandle is returned by a Handle superseded by a newer bind under the same alias.
	ErrStaleHandle = errors.New("ldap handle superseded by a newer bind")

	// ErrEntryNotFound is returned when the bound identity's entry can not be read.
	ErrEntryNotFound = errors.New("ldap entry not found")

	// ErrConflict is returned by Save when the entry changed since it was loaded.
	ErrConflict = errors.New("ldap entry changed concurrently")

	// ErrWriteRejected is returned by Save when the directory refuses the modification.
	ErrWriteRejected = errors.New("ldap modification rejected")

	// ErrNilConfig is returned by New without a config.
	ErrNilConfig = errors.New("ldap config is nil")

	// ErrInvalidDNTemplate is returned by New when the DN template lacks the username placeholder.
	ErrInvalidDNTemplate = errors.New("ldap user dn template must contain " + UsernamePlaceholder)
)

// classifyBindError separates credential problems from infrastructure faults.
func classifyBindError(err error) error {
	if ldap.IsErrorAnyOf(err,
		ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultUnwillingToPerform,
		ldap.LDAPResultInsufficientAccessRights,
	) {
		return fmt.Errorf("%w: %w", ErrBindRejected, err)
	}

	return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
}

func classifyModifyError(err error) error {
	switch {
	case ldap.IsErrorAnyOf(err, ldap.LDAPResultNoSuchAttribute, ldap.LDAPResultAttributeOrValueExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultTimeLimitExceeded,
	):
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrWriteRejected, err)
	}
}
