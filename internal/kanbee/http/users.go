package http

import (
	"net/http"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
)

type UsersHandler struct {
	Users *service.UserService
	Coord *coordinator.Coordinator
}

func actorFrom(r *http.Request) service.Actor {
	c, _ := httpx.ClaimsFromContext(r.Context())
	return service.ActorFromClaims(c, "")
}

func fullView(u domain.User) domain.User {
	u.Normalize()
	return u
}

func publicView(u domain.User) kanbeesdk.PublicUser {
	return kanbeesdk.PublicUser{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

func publicViews(users []domain.User) []kanbeesdk.PublicUser {
	out := make([]kanbeesdk.PublicUser, len(users))
	for i, u := range users {
		out[i] = publicView(u)
	}
	return out
}

// HandleMe returns the caller's account.
//
//	@Summary	Current user
//	@Tags		Users
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	kanbeesdk.User
//	@Failure	401	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.FindByID(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fullView(u))
}

// HandleGet looks a user up by id or email. Other users get the public view.
//
//	@Summary	Get user
//	@Tags		Users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		idOrEmail	path		string	true	"User id or email"
//	@Success	200			{object}	kanbeesdk.User	"Full view for self and ADMIN, public fields otherwise"
//	@Failure	404			{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/{idOrEmail} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.FindOne(r.Context(), r.PathValue("idOrEmail"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actorFrom(r).IsSelfOrAdmin(u.ID) {
		httpx.WriteJSON(w, http.StatusOK, fullView(u))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, publicView(u))
}

// HandleSearch matches users by email or username substring.
//
//	@Summary	Search users
//	@Tags		Users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		q	query		string	true	"Email or username fragment"
//	@Success	200	{array}		kanbeesdk.PublicUser
//	@Failure	400	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/search [get].
func (h *UsersHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, publicViews(users))
}

// HandleMembers resolves user ids to public profiles, skipping unknown ids.
//
//	@Summary	Resolve members
//	@Tags		Users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body	kanbeesdk.MembersRequest	true	"User ids"
//	@Success	200		{array}	kanbeesdk.PublicUser
//	@Router		/v1/users/members [post].
func (h *UsersHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.MembersRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	users, err := h.Users.Members(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, publicViews(users))
}

// HandleUpdate changes the username or avatar.
//
//	@Summary	Update profile
//	@Tags		Users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"User id"
//	@Param		request	body		kanbeesdk.ProfileUpdate	true	"Fields to change"
//	@Success	200		{object}	kanbeesdk.User
//	@Failure	403		{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/{id} [patch].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.ProfileUpdate
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	u, err := h.Users.UpdateProfile(r.Context(), actorFrom(r), r.PathValue("id"),
		service.ProfileUpdate{Username: req.Username, Avatar: req.Avatar})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fullView(u))
}

// HandleDelete removes an account.
//
//	@Summary	Delete user
//	@Tags		Users
//	@Security	BearerAuth
//	@Param		id	path	string	true	"User id"
//	@Success	204
//	@Failure	403	{object}	kanbeesdk.ErrorResponse
//	@Failure	404	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/{id} [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTimer counts one completed focus cycle.
//
//	@Summary	Increment cycle timer
//	@Tags		Users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"User id"
//	@Success	200	{object}	kanbeesdk.User
//	@Failure	403	{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/users/{id}/timer [post].
func (h *UsersHandler) HandleTimer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !actorFrom(r).IsSelfOrAdmin(id) {
		writeError(w, r, service.ErrForbidden)
		return
	}
	u, err := h.Users.IncrementTimer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fullView(u))
}

// HandleAcceptExclusion acknowledges removal from a project.
//
//	@Summary	Acknowledge exclusion
//	@Tags		Users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string								true	"User id"
//	@Param		request	body		kanbeesdk.AcceptExclusionRequest	true	"Project title"
//	@Success	200		{object}	kanbeesdk.User
//	@Router		/v1/users/{id}/exclusions/accept [post].
func (h *UsersHandler) HandleAcceptExclusion(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.AcceptExclusionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	u, err := h.Coord.AcceptExclusion(r.Context(), actorFrom(r), req.Title, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fullView(u))
}
