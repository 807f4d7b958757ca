// Package models contains database model definitions.
package models

import "time"

// AuthSource records which credential source created or last authenticated a user.
type AuthSource string

const (
	// AuthSourceCertificate is a TLS client certificate matched by e-mail.
	AuthSourceCertificate AuthSource = "certificate"
	// AuthSourceSSHKey is an SSH public key matched against the directory.
	AuthSourceSSHKey AuthSource = "ssh"
	// AuthSourceLDAP is a username and password bound against the directory.
	AuthSourceLDAP AuthSource = "ldap"
)

// UnusablePassword is stored in the password column of every shadow user.
// Authentication always goes to the directory.
const UnusablePassword = "!"

// User is the local shadow record of a directory account.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Active indicates whether the user may log in to the portal.
	Active bool
	// Username keeps the casing of the first successful login.
	Username string `gorm:"size:100;not null"`
	// UsernameKey is the normalized lookup key (trimmed, lower case).
	UsernameKey string `gorm:"uniqueIndex;size:100;not null"`
	// DN is the distinguished name of the directory entry.
	DN string `gorm:"size:255"`
	// Email is the user's primary e-mail address as found in the directory.
	Email string `gorm:"size:255"`
	// DisplayName is the full name as found in the directory.
	DisplayName string `gorm:"size:255"`
	FirstName   string `gorm:"size:100"`
	LastName    string `gorm:"size:100"`
	// Password always holds UnusablePassword.
	Password string `gorm:"size:255;not null;default:'!'"`
	// AuthSource is the credential source of the last directory-backed login.
	AuthSource AuthSource `gorm:"type:varchar(20);not null;default:'ldap'"`
	// LastLoginAt is the time of the last directory-backed login.
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasUsablePassword is always false, shadow users can not log in locally.
func (u *User) HasUsablePassword() bool {
	return false
}
