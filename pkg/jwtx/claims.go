package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of access tokens unless configured.
// Sessions are extended through refresh rotation, not long access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims is the fixed identity structure carried by access tokens. The user
// id travels in the registered "sub" claim.
type Claims struct {
	jwt.RegisteredClaims

	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// NewAccessClaims builds claims for userID valid for ttl from now.
func NewAccessClaims(userID, email string, roles []string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email: email,
		Roles: slices.Clone(roles),
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// UserID is the authenticated user id.
func (c Claims) UserID() string { return c.Subject }

// HasRole reports whether role was granted.
func (c Claims) HasRole(role string) bool { return slices.Contains(c.Roles, role) }

// Validate checks the fields every access token must carry.
func (c *Claims) Validate() error {
	if c.Subject == "" || c.Email == "" {
		return ErrInvalidClaim
	}
	return nil
}

// ValidateIssuer checks the issuer when expected is non-empty.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its exp/nbf window.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
