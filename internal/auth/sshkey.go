package auth

import (
	"bytes"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
)

type sshKeyProbe struct {
	dir *directory.Directory
}

func (p *sshKeyProbe) Source() identity.Source {
	return identity.SourceSSHKey
}

// Probe compares the offered key with every stored key. Values that do not
// parse as authorized keys are skipped.
func (p *sshKeyProbe) Probe(creds *Credentials) (*identity.Identity, error) {
	if creds.SSHKey == nil {
		return nil, nil //nolint:nilnil
	}

	cfg := p.dir.Config()
	offered := creds.SSHKey.Marshal()

	entries, err := p.dir.Search(directory.PresenceFilter(cfg.SSHKeyAttr), append(identityAttributes(cfg), cfg.SSHKeyAttr))
	if err != nil {
		return nil, err
	}

	var matches []*directory.Entry

	for _, e := range entries {
		if hasKey(e.Values(cfg.SSHKeyAttr), offered) {
			matches = append(matches, e)
		}
	}

	entry := uniqueEntry(matches)
	if entry == nil {
		if len(matches) > 0 {
			log.Warn().Str("fingerprint", ssh.FingerprintSHA256(creds.SSHKey)).Int("entries", len(matches)).
				Msg("ssh key is registered for more than one directory entry")
		}

		return nil, nil //nolint:nilnil
	}

	id := identityFromEntry(cfg, entry, "", identity.SourceSSHKey)
	if id.Username == "" {
		return nil, nil //nolint:nilnil
	}

	return id, nil
}

func hasKey(values []string, offered []byte) bool {
	for _, v := range values {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(v))
		if err != nil {
			continue
		}

		if bytes.Equal(key.Marshal(), offered) {
			return true
		}
	}

	return false
}
