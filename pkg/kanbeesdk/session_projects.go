package kanbeesdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

func projectPath(id string, rest ...string) string {
	return "/v1/projects/" + url.PathEscape(id) + strings.Join(rest, "")
}

func (s *Session) CreateProject(ctx context.Context, title string) (*Project, error) {
	var out Project
	if err := s.do(ctx, http.MethodPost, "/v1/projects", CreateProjectRequest{Title: title}, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns the given projects the caller can see, or all of
// the caller's projects when ids is empty.
func (s *Session) ListProjects(ctx context.Context, ids ...string) ([]Project, error) {
	path := "/v1/projects"
	if len(ids) > 0 {
		path += "?ids=" + url.QueryEscape(strings.Join(ids, ","))
	}
	var out []Project
	if err := s.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) GetProject(ctx context.Context, id string) (*Project, error) {
	var out Project
	if err := s.get(ctx, projectPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) UpdateKanban(ctx context.Context, id string, kanban []Column) (*Project, error) {
	var out Project
	if err := s.do(ctx, http.MethodPut, projectPath(id, "/kanban"), UpdateKanbanRequest{Kanban: kanban}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DeleteProject(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, projectPath(id), nil, nil, http.StatusNoContent)
}

func (s *Session) ProjectMembers(ctx context.Context, id string) ([]PublicUser, error) {
	var out []PublicUser
	if err := s.get(ctx, projectPath(id, "/members"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) SendInvite(ctx context.Context, projectID, email string) (*Invite, error) {
	var out Invite
	if err := s.do(ctx, http.MethodPost, projectPath(projectID, "/invites"), SendInviteRequest{Email: email}, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) AcceptInvite(ctx context.Context, projectID string) (*Project, error) {
	var out Project
	if err := s.do(ctx, http.MethodPost, projectPath(projectID, "/invites/accept"), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) IgnoreInvite(ctx context.Context, projectID string) error {
	return s.do(ctx, http.MethodPost, projectPath(projectID, "/invites/ignore"), nil, nil, http.StatusNoContent)
}

// RemoveMember exiles userID, or leaves the project when userID is the
// caller.
func (s *Session) RemoveMember(ctx context.Context, projectID, userID string) (*Project, error) {
	var out Project
	if err := s.do(ctx, http.MethodDelete, projectPath(projectID, "/members/", url.PathEscape(userID)), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
