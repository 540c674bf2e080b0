package domain

import "time"

// Session binds a refresh token to one (user, device) pair. Token holds the
// fingerprint of the opaque value handed to the client, never the value.
type Session struct {
	Token     string
	UserID    string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// TokenPair is what a successful sign-in or rotation hands back.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
