package kanbeesdk

import (
	"context"
	"net/http"
	"net/url"
)

// Me returns the signed-in user.
func (s *Session) Me(ctx context.Context) (*User, error) {
	var out User
	if err := s.get(ctx, "/v1/users/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser looks a user up by id or email. Only the owner and ADMINs get
// the full view; everyone else sees the public fields.
func (s *Session) GetUser(ctx context.Context, idOrEmail string) (*User, error) {
	var out User
	if err := s.get(ctx, "/v1/users/"+url.PathEscape(idOrEmail), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) SearchUsers(ctx context.Context, query string) ([]PublicUser, error) {
	var out []PublicUser
	if err := s.get(ctx, "/v1/users/search?q="+url.QueryEscape(query), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Members resolves user ids to public profiles, skipping unknown ids.
func (s *Session) Members(ctx context.Context, ids ...string) ([]PublicUser, error) {
	var out []PublicUser
	if err := s.do(ctx, http.MethodPost, "/v1/users/members", MembersRequest{IDs: ids}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	var out User
	if err := s.do(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(userID), upd, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	return s.do(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(userID), nil, nil, http.StatusNoContent)
}

// IncrementTimer bumps the user's cycle timer.
func (s *Session) IncrementTimer(ctx context.Context, userID string) (*User, error) {
	var out User
	if err := s.do(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/timer", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptExclusion acknowledges the notice for a project the user was
// removed from.
func (s *Session) AcceptExclusion(ctx context.Context, userID, title string) (*User, error) {
	var out User
	path := "/v1/users/" + url.PathEscape(userID) + "/exclusions/accept"
	if err := s.do(ctx, http.MethodPost, path, AcceptExclusionRequest{Title: title}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) CreateQuote(ctx context.Context, text string) (*Quote, error) {
	var out Quote
	if err := s.do(ctx, http.MethodPost, "/v1/quotes", CreateQuoteRequest{Text: text}, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}
