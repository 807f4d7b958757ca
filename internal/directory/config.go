package directory

// Config holds the LDAP connection and schema settings.
type Config struct {
	// Host is the LDAP server hostname or IP address.
	Host string
	// Port is the LDAP server port (typically 389 for LDAP, 636 for LDAPS).
	Port int
	// UseSSL enables LDAPS (LDAP over SSL/TLS).
	UseSSL bool
	// UseTLS enables StartTLS to upgrade a plain LDAP connection.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the service account used for certificate and SSH key lookups.
	// Searches run anonymously when empty.
	BindDN string
	// BindPassword is the password for BindDN.
	BindPassword string
	// BaseDN is the base of all user entries.
	BaseDN string
	// UserDNTemplate builds a user's DN, e.g. "uid={username},ou=people,o=test".
	UserDNTemplate string
	// UserObjectClass restricts searches to entries of this class when set.
	UserObjectClass string
	// UsernameAttr holds the login name (e.g. "uid").
	UsernameAttr string
	// EmailAttr holds e-mail addresses (e.g. "mail").
	EmailAttr string
	// DisplayNameAttr holds the full name (e.g. "cn").
	DisplayNameAttr string
	// FirstNameAttr holds the given name (e.g. "givenName").
	FirstNameAttr string
	// LastNameAttr holds the surname (e.g. "sn").
	LastNameAttr string
	// SSHKeyAttr holds authorized SSH public keys (e.g. "sshPublicKey").
	SSHKeyAttr string
	// PasswordAttr is the multi-valued password hash attribute (e.g. "userPassword").
	PasswordAttr string
	// GroupAttr holds ACL group memberships (e.g. "memberOf").
	GroupAttr string
	// Timeout is the connection and operation timeout in seconds.
	Timeout int
}

// UsernamePlaceholder is replaced by the escaped username in UserDNTemplate.
const UsernamePlaceholder = "{username}"

// SetDefaults fills the attribute names and timeout left empty.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 389
		if c.UseSSL {
			c.Port = 636
		}
	}

	if c.UsernameAttr == "" {
		c.UsernameAttr = "uid"
	}

	if c.EmailAttr == "" {
		c.EmailAttr = "mail"
	}

	if c.DisplayNameAttr == "" {
		c.DisplayNameAttr = "cn"
	}

	if c.FirstNameAttr == "" {
		c.FirstNameAttr = "givenName"
	}

	if c.LastNameAttr == "" {
		c.LastNameAttr = "sn"
	}

	if c.SSHKeyAttr == "" {
		c.SSHKeyAttr = "sshPublicKey"
	}

	if c.PasswordAttr == "" {
		c.PasswordAttr = "userPassword"
	}

	if c.GroupAttr == "" {
		c.GroupAttr = "memberOf"
	}

	if c.Timeout == 0 {
		c.Timeout = 10
	}
}
