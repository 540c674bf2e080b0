package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
)

// ProjectsHandler exposes the coordinator over REST. Requests carry no
// connection id, so every subscriber of a project sees REST driven changes.
type ProjectsHandler struct {
	Coord *coordinator.Coordinator
}

// HandleList returns the caller's projects, or the listed ids it may see.
//
//	@Summary	List projects
//	@Tags		Projects
//	@Security	BearerAuth
//	@Produce	json
//	@Param		ids	query	string	false	"Comma separated project ids"
//	@Success	200	{array}	kanbeesdk.Project
//	@Router		/v1/projects [get].
func (h *ProjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for id := range strings.SplitSeq(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	projects, err := h.Coord.FindProjects(r.Context(), actorFrom(r), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range projects {
		projects[i].Normalize()
	}
	httpx.WriteJSON(w, http.StatusOK, projects)
}

// HandleCreate starts a project with the default board.
//
//	@Summary	Create project
//	@Tags		Projects
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		kanbeesdk.CreateProjectRequest	true	"Title"
//	@Success	201		{object}	kanbeesdk.Project
//	@Failure	400		{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/projects [post].
func (h *ProjectsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.CreateProjectRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	p, err := h.Coord.CreateProject(r.Context(), actorFrom(r), req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Normalize()
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// HandleGet returns one project.
//
//	@Summary	Get project
//	@Tags		Projects
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Project id"
//	@Success	200	{object}	kanbeesdk.Project
//	@Failure	403	{object}	kanbeesdk.ErrorResponse
//	@Failure	404	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/projects/{id} [get].
func (h *ProjectsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.Coord.FindProject(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// HandleUpdateKanban replaces the board.
//
//	@Summary	Update board
//	@Tags		Projects
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string							true	"Project id"
//	@Param		request	body		kanbeesdk.UpdateKanbanRequest	true	"Full board"
//	@Success	200		{object}	kanbeesdk.Project
//	@Failure	400		{object}	kanbeesdk.ErrorResponse
//	@Failure	403		{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/projects/{id}/kanban [put].
func (h *ProjectsHandler) HandleUpdateKanban(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kanban []domain.Column `json:"kanban"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.Kanban == nil {
		writeBadRequest(w, "kanban is required")
		return
	}

	p, err := h.Coord.UpdateKanban(r.Context(), actorFrom(r), r.PathValue("id"), req.Kanban)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Normalize()
	httpx.WriteJSON(w, http.StatusOK, p)
}

// HandleDelete removes a project for every member.
//
//	@Summary	Delete project
//	@Tags		Projects
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Project id"
//	@Success	204
//	@Failure	403	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/projects/{id} [delete].
func (h *ProjectsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Coord.RemoveProject(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMembers lists the project's members.
//
//	@Summary	Project members
//	@Tags		Projects
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path	string	true	"Project id"
//	@Success	200	{array}	kanbeesdk.PublicUser
//	@Router		/v1/projects/{id}/members [get].
func (h *ProjectsHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Coord.GetMembers(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

// HandleInvite invites a user by email.
//
//	@Summary	Invite user
//	@Tags		Projects
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string						true	"Project id"
//	@Param		request	body		kanbeesdk.SendInviteRequest	true	"Invitee email"
//	@Success	201		{object}	kanbeesdk.Invite
//	@Failure	404		{object}	kanbeesdk.ErrorResponse	"No such user"
//	@Failure	409		{object}	kanbeesdk.ErrorResponse	"Already a member"
//	@Router		/v1/projects/{id}/invites [post].
func (h *ProjectsHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.SendInviteRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	inv, err := h.Coord.SendInvite(r.Context(), actorFrom(r), r.PathValue("id"), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, inv)
}

// HandleAcceptInvite joins the project the caller was invited to.
//
//	@Summary	Accept invite
//	@Tags		Projects
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Project id"
//	@Success	200	{object}	kanbeesdk.Project
//	@Failure	404	{object}	kanbeesdk.ErrorResponse	"No pending invite"
//	@Router		/v1/projects/{id}/invites/accept [post].
func (h *ProjectsHandler) HandleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	p, err := h.Coord.AccessInvite(r.Context(), actor, r.PathValue("id"), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Normalize()
	httpx.WriteJSON(w, http.StatusOK, p)
}

// HandleIgnoreInvite drops a pending invite.
//
//	@Summary	Ignore invite
//	@Tags		Projects
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Project id"
//	@Success	204
//	@Router		/v1/projects/{id}/invites/ignore [post].
func (h *ProjectsHandler) HandleIgnoreInvite(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if _, err := h.Coord.IgnoreInvite(r.Context(), actor, r.PathValue("id"), actor.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveMember exiles userId, or leaves when userId is the caller.
//
//	@Summary	Remove member
//	@Tags		Projects
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id		path		string	true	"Project id"
//	@Param		userId	path		string	true	"Member id"
//	@Success	200		{object}	kanbeesdk.Project
//	@Failure	403		{object}	kanbeesdk.ErrorResponse
//	@Failure	409		{object}	kanbeesdk.ErrorResponse	"The project admin cannot be removed"
//	@Router		/v1/projects/{id}/members/{userId} [delete].
func (h *ProjectsHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	projectID, userID := r.PathValue("id"), r.PathValue("userId")

	var (
		p   domain.Project
		err error
	)
	if userID == actor.UserID {
		p, err = h.Coord.LeaveProject(r.Context(), actor, projectID, userID)
	} else {
		p, err = h.Coord.ExileUser(r.Context(), actor, projectID, userID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Normalize()
	httpx.WriteJSON(w, http.StatusOK, p)
}
