package auth

import (
	"errors"

	"gorm.io/gorm"

	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/identity"
)

type sessionProbe struct {
	db *gorm.DB
}

func (p *sessionProbe) Source() identity.Source {
	return identity.SourceSession
}

// Probe restores the identity of an authenticated session from its shadow
// record without asking the directory.
func (p *sessionProbe) Probe(creds *Credentials) (*identity.Identity, error) {
	if creds.SessionUserID == 0 {
		return nil, nil //nolint:nilnil
	}

	user, err := shadowuser.GetByID(p.db, creds.SessionUserID)
	if err != nil {
		if errors.Is(err, shadowuser.ErrUserNotFound) {
			return nil, nil //nolint:nilnil
		}

		return nil, err
	}

	if !user.Active {
		return nil, nil //nolint:nilnil
	}

	groups, err := shadowuser.Groups(p.db, user.ID)
	if err != nil {
		return nil, err
	}

	id := &identity.Identity{
		Username:    user.Username,
		DN:          user.DN,
		DisplayName: user.DisplayName,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Source:      identity.SourceSession,
	}

	for _, g := range groups {
		id.Groups = append(id.Groups, g.ExternalID)
	}

	return id, nil
}
