package auth

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/okupy/okupy/internal/alert"
	"github.com/okupy/okupy/internal/db/controller/shadowuser"
	"github.com/okupy/okupy/internal/db/models"
	"github.com/okupy/okupy/internal/directory"
	"github.com/okupy/okupy/internal/identity"
)

// Probe checks one credential source.
type Probe interface {
	// Source is the credential source the probe checks.
	Source() identity.Source
	// Probe returns nil without an error when the source is absent or nobody matched.
	Probe(creds *Credentials) (*identity.Identity, error)
}

// Result is a resolved identity with its shadow record.
type Result struct {
	Identity *identity.Identity
	User     *models.User
}

// Resolver turns request credentials into an identity.
type Resolver struct {
	probes   []Probe
	db       *gorm.DB
	notifier alert.Notifier
}

// NewResolver returns a Resolver with the certificate, SSH key, password and
// session probes, in that order.
func NewResolver(dir *directory.Directory, db *gorm.DB, notifier alert.Notifier) *Resolver {
	return NewResolverWithProbes(db, notifier,
		&certificateProbe{dir: dir},
		&sshKeyProbe{dir: dir},
		&passwordProbe{dir: dir},
		&sessionProbe{db: db},
	)
}

// NewResolverWithProbes returns a Resolver asking probes in the given order.
func NewResolverWithProbes(db *gorm.DB, notifier alert.Notifier, probes ...Probe) *Resolver {
	if notifier == nil {
		notifier = alert.LogNotifier{}
	}

	return &Resolver{
		probes:   probes,
		db:       db,
		notifier: notifier,
	}
}

// Sources returns the credential sources in the order they are tried.
func (r *Resolver) Sources() []identity.Source {
	sources := make([]identity.Source, 0, len(r.probes))
	for _, p := range r.probes {
		sources = append(sources, p.Source())
	}

	return sources
}

// Resolve returns the identity of the first probe that finds one, or nil.
// Errors are infrastructure faults only.
func (r *Resolver) Resolve(creds *Credentials) (*Result, error) {
	id, err := r.Lookup(creds)
	if err != nil || id == nil {
		return nil, err
	}

	return r.Admit(id)
}

// Lookup asks the probes in order and returns the first identity found,
// without touching the shadow store. Callers that learn about the credential
// before it is proven, such as the SSH public key callback, use Lookup and
// Admit once the proof is done.
func (r *Resolver) Lookup(creds *Credentials) (*identity.Identity, error) {
	if creds == nil {
		creds = &Credentials{}
	}

	for _, p := range r.probes {
		id, err := p.Probe(creds)
		if err != nil {
			observe(p.Source(), outcomeError)

			if errors.Is(err, directory.ErrDirectoryUnavailable) {
				r.notifier.DirectoryUnavailable(identity.Normalize(creds.Username), err)
			}

			return nil, fmt.Errorf("%s: %w", p.Source(), err)
		}

		if id != nil {
			return id, nil
		}
	}

	observe(sourceNone, outcomeNoMatch)

	return nil, nil //nolint:nilnil // nobody is a normal outcome
}

// Admit records a proven identity in the shadow store. It returns nil when
// the account is disabled.
func (r *Resolver) Admit(id *identity.Identity) (*Result, error) {
	user, err := r.anchor(id)
	if err != nil {
		observe(id.Source, outcomeError)

		return nil, err
	}

	if !user.Active {
		observe(id.Source, outcomeDisabled)

		log.Info().
			Str("username", user.Username).
			Str("source", string(id.Source)).
			Msg("shadow user is disabled")

		return nil, nil //nolint:nilnil
	}

	observe(id.Source, outcomeSuccess)

	log.Info().
		Str("username", id.Username).
		Str("source", string(id.Source)).
		Uint64("user_id", user.ID).
		Msg("identity resolved")

	return &Result{Identity: id, User: user}, nil
}

// Authenticate is Resolve for login forms: not finding anyone becomes
// ErrAuthenticationFailed.
func (r *Resolver) Authenticate(creds *Credentials) (*Result, error) {
	res, err := r.Resolve(creds)
	if err != nil {
		return nil, err
	}

	if res == nil {
		return nil, ErrAuthenticationFailed
	}

	return res, nil
}

// anchor makes sure a shadow record exists for id.
func (r *Resolver) anchor(id *identity.Identity) (*models.User, error) {
	if id.Source == identity.SourceSession {
		user, err := shadowuser.GetByUsername(r.db, id.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to load shadow user: %w", err)
		}

		return user, nil
	}

	user, created, err := shadowuser.GetOrCreate(r.db, id.Username, id)
	if err != nil {
		return nil, fmt.Errorf("failed to record shadow user: %w", err)
	}

	if created {
		log.Info().Str("username", user.Username).Uint64("user_id", user.ID).Msg("shadow user created")
	}

	if err = shadowuser.SyncGroups(r.db, user.ID, id.Groups); err != nil {
		return nil, fmt.Errorf("failed to sync groups: %w", err)
	}

	return user, nil
}

// identityAttributes are the attributes read to build an identity.
func identityAttributes(cfg *directory.Config) []string {
	return []string{
		cfg.UsernameAttr,
		cfg.EmailAttr,
		cfg.DisplayNameAttr,
		cfg.FirstNameAttr,
		cfg.LastNameAttr,
		cfg.GroupAttr,
	}
}

// identityFromEntry builds an identity from a directory entry. An empty
// username uses the entry's username attribute.
func identityFromEntry(cfg *directory.Config, e *directory.Entry, username string, source identity.Source) *identity.Identity {
	if username == "" {
		username = e.Get(cfg.UsernameAttr)
	}

	return &identity.Identity{
		Username:    identity.Normalize(username),
		DN:          e.DN,
		DisplayName: e.Get(cfg.DisplayNameAttr),
		FirstName:   e.Get(cfg.FirstNameAttr),
		LastName:    e.Get(cfg.LastNameAttr),
		Email:       e.Get(cfg.EmailAttr),
		Groups:      e.Values(cfg.GroupAttr),
		Source:      source,
	}
}

// uniqueEntry returns the single entry when all of entries share one DN.
func uniqueEntry(entries []*directory.Entry) *directory.Entry {
	var found *directory.Entry

	for _, e := range entries {
		if found != nil && !sameDN(found.DN, e.DN) {
			return nil
		}

		found = e
	}

	return found
}
