package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okupy/okupy/internal/uniuri"
)

const (
	tokenIssuer   = "okupy"
	tokenAudience = "ssh-login"

	// DefaultTokenTTL is how long an SSH login URL stays valid.
	DefaultTokenTTL = 5 * time.Minute
)

// LoginClaims are carried by a one-time login token.
type LoginClaims struct {
	// UserID is the shadow user the token logs in.
	UserID uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks one-time login tokens handed out by the SSH
// login listener.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns a TokenIssuer signing with secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue returns a signed token for a resolved identity.
func (t *TokenIssuer) Issue(res *Result) (string, error) {
	return t.IssueFor(res.User.ID, res.User.Username)
}

// IssueFor returns a signed token for the shadow user userID.
func (t *TokenIssuer) IssueFor(userID uint64, username string) (string, error) {
	id, err := uniuri.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}

	now := t.now()

	claims := LoginClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        id,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*LoginClaims, error) {
	claims := new(LoginClaims)

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.UserID == 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
