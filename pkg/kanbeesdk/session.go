package kanbeesdk

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// refreshSkew refreshes access tokens shortly before they expire.
const refreshSkew = 30 * time.Second

// Session is a signed-in user on one Client. Access tokens are refreshed
// through the Client's refresh cookie when they are about to expire.
type Session struct {
	client *Client

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func newSession(c *Client, tok TokenResponse) *Session {
	expiresAt := tok.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return &Session{client: c, accessToken: tok.AccessToken, expiresAt: expiresAt.Add(-refreshSkew)}
}

// AccessToken returns the current access token without refreshing.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	tok, err := s.client.Refresh(ctx)
	if err != nil {
		return "", err
	}
	fresh := newSession(s.client, *tok)
	s.accessToken, s.expiresAt = fresh.accessToken, fresh.expiresAt
	return s.accessToken, nil
}

// Logout revokes this device's session.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

// do runs an authenticated request and decodes the JSON reply into out.
// A nil out expects 204 No Content.
func (s *Session) do(ctx context.Context, method, path string, body, out any, expected int) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	resp, err := s.client.doRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	if out == nil {
		return checkStatusNoContent(resp)
	}
	return decodeJSON(resp, out, expected)
}

func (s *Session) get(ctx context.Context, path string, out any) error {
	return s.do(ctx, http.MethodGet, path, nil, out, http.StatusOK)
}
