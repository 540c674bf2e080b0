package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultSessionTTL = 24 * time.Hour
)

// SessionService issues, rotates and revokes refresh sessions. One session
// exists per (user, device); the opaque refresh token is only ever stored as
// its fingerprint.
type SessionService struct {
	Store   store.Store
	Users   *UserService
	Keys    *jwtx.KeyManager
	Issuer  string
	Metrics *metrics.Metrics

	AccessTTL  time.Duration
	SessionTTL time.Duration

	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

func (s *SessionService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

// Issue starts a session for u on deviceID, replacing any session that
// device already had.
func (s *SessionService) Issue(ctx context.Context, u domain.User, deviceID string) (domain.TokenPair, error) {
	now := s.now()

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	sess := domain.Session{
		Token:     cryptox.FingerprintToken(opaque),
		UserID:    u.ID,
		UserAgent: deviceID,
		ExpiresAt: now.Add(s.sessionTTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Sessions().UpsertSession(ctx, sess); err != nil {
		return domain.TokenPair{}, fmt.Errorf("store session: %w", err)
	}

	pair, err := s.pair(u, opaque, sess.ExpiresAt, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	slogx.FromContext(ctx).Info("session issued", slog.String("user_id", u.ID))
	return pair, nil
}

// Rotate trades a live refresh token for a new pair. The swap is a single
// compare-and-swap in the store: an unknown, already rotated, expired or
// foreign-device token yields ErrSessionExpired, and of two concurrent
// rotations of one token exactly one succeeds.
func (s *SessionService) Rotate(ctx context.Context, refreshToken, deviceID string) (domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.TokenPair{}, ErrSessionExpired
	}
	now := s.now()

	next, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}
	expiresAt := now.Add(s.sessionTTL())

	userID, err := s.Store.Sessions().RotateSession(ctx,
		cryptox.FingerprintToken(refreshToken), deviceID,
		cryptox.FingerprintToken(next), expiresAt, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.SessionRotation("expired")
			return domain.TokenPair{}, ErrSessionExpired
		}
		return domain.TokenPair{}, fmt.Errorf("rotate session: %w", err)
	}

	u, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(next))
			return domain.TokenPair{}, ErrSessionExpired
		}
		return domain.TokenPair{}, err
	}

	s.Metrics.SessionRotation("ok")
	return s.pair(u, next, expiresAt, now)
}

// Revoke ends the session behind refreshToken. Unknown tokens are fine.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(refreshToken))
}

// Peek mints a fresh access token for a live session without rotating it.
// Claims come from the user's current state, not from when the session began.
func (s *SessionService) Peek(ctx context.Context, refreshToken, deviceID string) (string, time.Time, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", time.Time{}, ErrSessionExpired
	}
	now := s.now()

	sess, err := s.Store.Sessions().GetSession(ctx, cryptox.FingerprintToken(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, ErrSessionExpired
		}
		return "", time.Time{}, err
	}
	if sess.UserAgent != deviceID || sess.Expired(now) {
		return "", time.Time{}, ErrSessionExpired
	}

	u, err := s.Users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrSessionExpired
		}
		return "", time.Time{}, err
	}

	return s.signAccess(u, now)
}

// Authenticate verifies an access token and returns its claims.
func (s *SessionService) Authenticate(token string) (jwtx.Claims, error) {
	claims, err := s.Keys.Verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims, nil
}

func (s *SessionService) pair(u domain.User, refresh string, refreshExp, now time.Time) (domain.TokenPair, error) {
	access, accessExp, err := s.signAccess(u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *SessionService) signAccess(u domain.User, now time.Time) (string, time.Time, error) {
	claims := jwtx.NewAccessClaims(u.ID, u.Email, u.RoleNames(), s.accessTTL(), s.Issuer, now)
	token, err := s.Keys.Signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}
