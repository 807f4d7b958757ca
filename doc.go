// Package main provides the entry point of okupy, a self-service portal for
// LDAP accounts. Users log in with their directory password, a TLS client
// certificate forwarded by the proxy or an SSH key, and edit their own entry.
// Password sessions write a per-session secondary password hash into the
// directory so later edits can bind as the user without keeping the primary
// password. The application uses fiber for the web layer, gorm for the local
// shadow user records and go-ldap for the directory.
package main
