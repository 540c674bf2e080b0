package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/identity"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

// AuthService ties account lookup to session issuance for every sign-in
// path.
type AuthService struct {
	Users     *UserService
	Sessions  *SessionService
	Providers *identity.Registry
}

// SignUp registers a local account. It does not start a session.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (domain.User, error) {
	return s.Users.Register(ctx, in)
}

// SignIn checks credentials and issues a session for deviceID.
func (s *AuthService) SignIn(ctx context.Context, email, password, deviceID string) (domain.TokenPair, error) {
	u, err := s.Users.Authenticate(ctx, email, password)
	if err != nil {
		slogx.FromContext(ctx).Info("sign-in rejected", slog.String("email", normalizeEmail(email)))
		return domain.TokenPair{}, err
	}
	return s.Sessions.Issue(ctx, u, deviceID)
}

// ProviderURL returns where to send the browser to log in with provider.
func (s *AuthService) ProviderURL(provider, state string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// ProviderSignIn completes a federated login: the code is exchanged for a
// profile, the account is upserted and a session issued.
func (s *AuthService) ProviderSignIn(ctx context.Context, provider, code, deviceID string) (domain.TokenPair, error) {
	p, err := s.provider(provider)
	if err != nil {
		return domain.TokenPair{}, err
	}

	prof, err := p.Exchange(ctx, code)
	if err != nil {
		slogx.FromContext(ctx).Warn("provider exchange failed", slog.String("provider", provider), slog.Any("error", err))
		return domain.TokenPair{}, ErrUnauthenticated
	}

	u, err := s.Users.UpsertFederated(ctx, prof.Email, prof.Username, prof.Avatar, prof.Provider)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return s.Sessions.Issue(ctx, u, deviceID)
}

func (s *AuthService) provider(name string) (identity.Provider, error) {
	if s.Providers == nil {
		return nil, notFoundf("provider %s", name)
	}
	p, err := s.Providers.Get(name)
	if err != nil {
		return nil, notFoundf("provider %s", name)
	}
	return p, nil
}
