package auth

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
)

type passwordProbe struct {
	dir *directory.Directory
}

func (p *passwordProbe) Source() identity.Source {
	return identity.SourcePassword
}

// Probe binds as the user. Rejected credentials are no match, an unreachable
// directory is an error even when a shadow record exists.
func (p *passwordProbe) Probe(creds *Credentials) (*identity.Identity, error) {
	username := identity.Normalize(creds.Username)
	if username == "" || creds.Password == "" {
		return nil, nil //nolint:nilnil
	}

	h, err := p.dir.Bind(directory.Alias(username), username, []byte(creds.Password))
	if err != nil {
		if errors.Is(err, directory.ErrBindRejected) {
			log.Info().Str("username", username).Msg("directory rejected credentials")

			return nil, nil //nolint:nilnil
		}

		return nil, err
	}
	defer h.Close()

	entry, err := h.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to read own entry: %w", err)
	}

	return identityFromEntry(p.dir.Config(), entry, username, identity.SourcePassword), nil
}
