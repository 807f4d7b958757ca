// Package uniuri generates random identifiers from an alphabet, such as the
// IDs of single use login tokens.
package uniuri
