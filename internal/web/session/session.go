// Package session builds the fiber session store and keeps the keys the
// portal stores in a session.
package session

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/keyedmutex"
)

const (
	// KeyUserID holds the shadow user ID of an authenticated session.
	KeyUserID = "user_id"
	// KeyUsername holds the username of an authenticated session.
	KeyUsername = "username"
	// KeySource holds the credential source the session was opened with.
	KeySource = "source"

	// usedTokenPrefix namespaces used login token IDs in the session storage.
	usedTokenPrefix = "used_login_token:"
)

// New returns the session store. A nil storage keeps sessions in memory.
func New(storage fiber.Storage, cfg *config.Config) *session.Store {
	return session.New(session.Config{
		Storage:        storage,
		Expiration:     cfg.Webserver.Session.ExpiryTime,
		KeyLookup:      "cookie:" + cfg.Webserver.Session.CookieName,
		CookieDomain:   cfg.Webserver.Domain,
		CookieSecure:   !cfg.DevMode,
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Login turns sess into an authenticated session for res. The session ID is
// regenerated so an ID planted before login is worthless afterwards.
func Login(sess *session.Session, res *auth.Result) error {
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}

	sess.Set(KeyUserID, res.User.ID)
	sess.Set(KeyUsername, res.User.Username)
	sess.Set(KeySource, string(res.Identity.Source))

	return nil
}

// UserID returns the shadow user ID of an authenticated session or 0.
func UserID(sess *session.Session) uint64 {
	id, _ := sess.Get(KeyUserID).(uint64)

	return id
}

// Username returns the username of an authenticated session or "".
func Username(sess *session.Session) string {
	name, _ := sess.Get(KeyUsername).(string)

	return name
}

// tokenLocks serialises redemptions of one token ID in this process.
var tokenLocks = keyedmutex.New() //nolint:gochecknoglobals

// ConsumeToken records a login token ID as used. It reports false when the
// ID was used before. The record outlives the token by ttl.
//
// The check and the record are one step per process only: instances sharing
// a session database can still both accept a token redeemed at the same time.
func ConsumeToken(store *session.Store, tokenID string, ttl time.Duration) (bool, error) {
	key := usedTokenPrefix + tokenID

	defer tokenLocks.Lock(key)()

	seen, err := store.Storage.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read used token: %w", err)
	}

	if len(seen) > 0 {
		return false, nil
	}

	if err = store.Storage.Set(key, []byte{1}, ttl); err != nil {
		return false, fmt.Errorf("failed to record used token: %w", err)
	}

	return true, nil
}
