package auth

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
)

// oidEmailAddress is the PKCS #9 emailAddress attribute of a subject.
var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1} //nolint:gochecknoglobals

type certificateProbe struct {
	dir *directory.Directory
}

func (p *certificateProbe) Source() identity.Source {
	return identity.SourceCertificate
}

// Probe looks up every e-mail address of a verified certificate. The
// certificate authenticates when all matches are the same entry.
func (p *certificateProbe) Probe(creds *Credentials) (*identity.Identity, error) {
	if creds.TLSVerify != TLSVerifySuccess || creds.Certificate == "" {
		return nil, nil //nolint:nilnil
	}

	emails, err := CertificateEmails(creds.Certificate)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring unparsable client certificate")

		return nil, nil //nolint:nilnil
	}

	cfg := p.dir.Config()

	var matches []*directory.Entry

	for _, email := range emails {
		entries, err := p.dir.Search(directory.EqualityFilter(cfg.EmailAttr, email), identityAttributes(cfg))
		if err != nil {
			return nil, err
		}

		matches = append(matches, entries...)
	}

	entry := uniqueEntry(matches)
	if entry == nil {
		if len(matches) > 0 {
			log.Warn().Strs("emails", emails).Int("entries", len(matches)).
				Msg("client certificate matches more than one directory entry")
		}

		return nil, nil //nolint:nilnil
	}

	id := identityFromEntry(cfg, entry, "", identity.SourceCertificate)
	if id.Username == "" {
		log.Warn().Str("dn", entry.DN).Msg("directory entry has no username")

		return nil, nil //nolint:nilnil
	}

	return id, nil
}

// CertificateEmails returns the distinct e-mail addresses of a PEM
// certificate, from the subject alternative names and the subject.
func CertificateEmails(certPEM string) ([]string, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errNoPEMBlock
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	var (
		emails []string
		seen   = make(map[string]bool)
	)

	add := func(email string) {
		email = strings.TrimSpace(email)
		if email == "" || seen[strings.ToLower(email)] {
			return
		}

		seen[strings.ToLower(email)] = true
		emails = append(emails, email)
	}

	for _, email := range cert.EmailAddresses {
		add(email)
	}

	for _, name := range cert.Subject.Names {
		if !name.Type.Equal(oidEmailAddress) {
			continue
		}

		if email, ok := name.Value.(string); ok {
			add(email)
		}
	}

	return emails, nil
}

func sameDN(a, b string) bool {
	dnA, errA := ldap.ParseDN(a)
	dnB, errB := ldap.ParseDN(b)

	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}

	return dnA.Equal(dnB)
}
